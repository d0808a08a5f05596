package templates

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// BuiltinSource is the source label of templates bundled with docforge.
const BuiltinSource = "builtin"

// Root is one place templates are read from.
type Root struct {
	// Name labels the root in source paths, e.g. a directory or "builtin".
	Name string
	FS   fs.FS
	// Dir is set when the root is an OS directory; source paths are then real file paths.
	Dir string
}

// DirRoot returns a root backed by an OS directory.
func DirRoot(dir string) Root {
	return Root{Name: dir, FS: os.DirFS(dir), Dir: dir}
}

// FSRoot returns a root backed by an arbitrary filesystem.
func FSRoot(name string, fsys fs.FS) Root {
	return Root{Name: name, FS: fsys}
}

// SourcePath returns the display path of file within the root.
func (r Root) SourcePath(file string) string {
	if r.Dir != "" {
		return filepath.Join(r.Dir, filepath.FromSlash(file))
	}
	if r.Name == "" {
		return file
	}
	return r.Name + ":" + file
}

// TemplateSearchPaths returns template directories in precedence order.
func TemplateSearchPaths(projectDir string) []string {
	paths := make([]string, 0, 2)
	if projectDir != "" {
		paths = append(paths, filepath.Join(projectDir, ".docforge", "templates"))
	}

	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "docforge", "templates"))
	}
	return paths
}

// Candidates returns the file names tried for a template name, in order.
func Candidates(name string) []string {
	return []string{
		name + ".yaml",
		name + ".yml",
		name + "-tmpl.yaml",
		name + "-tmpl.yml",
	}
}

// NameFromFile derives a template name from a file name by stripping the
// extension and the -tmpl suffix.
func NameFromFile(file string) string {
	base := path.Base(filepath.ToSlash(file))
	base = strings.TrimSuffix(base, path.Ext(base))
	return strings.TrimSuffix(base, "-tmpl")
}

// validName reports whether name can be resolved inside a root.
func validName(name string) bool {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return false
	}
	return fs.ValidPath(name)
}

// resolve finds the first candidate for name across roots.
func resolve(roots []Root, name string) (Root, string, fs.FileInfo, []string) {
	var tried []string
	if !validName(name) {
		return Root{}, "", nil, tried
	}
	for _, root := range roots {
		for _, candidate := range Candidates(name) {
			tried = append(tried, root.SourcePath(candidate))
			info, err := fs.Stat(root.FS, candidate)
			if err != nil || info.IsDir() {
				continue
			}
			return root, candidate, info, tried
		}
	}
	return Root{}, "", nil, tried
}
