package runner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/traefik/yaegi/interp"
	"gopkg.in/yaml.v3"

	"github.com/runlit/runlit/internal/config"
	"github.com/runlit/runlit/internal/harness"
	"github.com/runlit/runlit/internal/run"
	"github.com/runlit/runlit/internal/scope"
)

// userConfig is the provider the config helpers operate on. Guards
// override it in memory; the on-disk file is never written.
var userConfig = config.NewProvider(config.NewFileSource(config.DefaultPath()))

// exports is the helper surface available to transcripts under a dot
// import. Helpers panic on hard failure, which surfaces as failure
// text in the calling example.
func (n *Namespace) exports() interp.Exports {
	return interp.Exports{
		"runlit/runlit": {
			"RunSpec":       reflect.ValueOf((*harness.RunSpec)(nil)),
			"PrintRunsOpts": reflect.ValueOf((*harness.PrintRunsOpts)(nil)),

			"NewProject": reflect.ValueOf(n.newProject),
			"Chdir":      reflect.ValueOf(n.chdir),
			"Setenv":     reflect.ValueOf(n.setenv),
			"UseConfig":  reflect.ValueOf(n.useConfig),
			"ExtendPath": reflect.ValueOf(n.extendPath),

			"ShowConfig":   reflect.ValueOf(showConfig),
			"Mkdtemp":      reflect.ValueOf(mkdtemp),
			"MkHome":       reflect.ValueOf(mkHome),
			"Mkdir":        reflect.ValueOf(mkdir),
			"Cwd":          reflect.ValueOf(cwd),
			"Cat":          reflect.ValueOf(cat),
			"WriteFile":    reflect.ValueOf(writeFile),
			"Touch":        reflect.ValueOf(touch),
			"Find":         reflect.ValueOf(find),
			"ComparePaths": reflect.ValueOf(comparePaths),
			"Exists":       reflect.ValueOf(exists),
			"Sha256":       reflect.ValueOf(sha256Of),
			"Path":         reflect.ValueOf(filepath.Join),
		},
	}
}

// newProject creates a harness project whose printed output flows into
// the example capture. The namespace closes it with the file.
func (n *Namespace) newProject(dir string) *harness.Project {
	p, err := harness.New(dir)
	if err != nil {
		panic(err)
	}
	p.Stdout = stdout{}
	n.projects = append(n.projects, p)
	return p
}

// chdir changes the working directory until the end of the file.
func (n *Namespace) chdir(dir string) {
	restore, err := scope.Chdir(dir)
	if err != nil {
		panic(err)
	}
	n.restores = append(n.restores, restore)
}

// setenv sets an environment variable until the end of the file.
func (n *Namespace) setenv(name, val string) {
	n.restores = append(n.restores, scope.Env(map[string]string{name: val}))
}

// useConfig overrides the user configuration until the end of the
// file.
func (n *Namespace) useConfig(data map[string]any) {
	n.restores = append(n.restores, scope.UserConfig(userConfig, config.Config(data)))
}

// extendPath appends directories to a project's model search path
// until the end of the file.
func (n *Namespace) extendPath(p *harness.Project, dirs ...string) {
	n.restores = append(n.restores, scope.SearchPath(p.Paths, scope.SearchPathOpts{Append: dirs}))
}

// showConfig prints the effective user configuration.
func showConfig() {
	cfg, err := userConfig.Config()
	if err != nil {
		panic(err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		panic(err)
	}
	fmt.Print(string(data))
}

func mkdtemp() string {
	dir, err := os.MkdirTemp("", "runlit-test-")
	if err != nil {
		panic(err)
	}
	return dir
}

// mkHome creates a fresh storage root and returns its path.
func mkHome() string {
	home := mkdtemp()
	if err := run.InitHome(home); err != nil {
		panic(err)
	}
	return home
}

func mkdir(dir string) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		panic(err)
	}
}

func cwd() string {
	dir, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	return dir
}

// cat prints a file's contents verbatim.
func cat(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	fmt.Print(string(data))
}

func writeFile(path, contents string) {
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		panic(err)
	}
}

func touch(path string) {
	writeFile(path, "")
}

// find prints the files under dir, one slash-separated relative path
// per line, sorted. An empty tree prints "<empty>".
func find(dir string) {
	paths := listPaths(dir)
	if len(paths) == 0 {
		fmt.Println("<empty>")
		return
	}
	fmt.Print(strings.Join(paths, "\n") + "\n")
}

// comparePaths prints the files present in only one of two directory
// trees. Matching trees print nothing.
func comparePaths(a, b string) {
	inA, inB := listPaths(a), listPaths(b)
	seen := make(map[string]int, len(inA)+len(inB))
	for _, p := range inA {
		seen[p] |= 1
	}
	for _, p := range inB {
		seen[p] |= 2
	}
	var all []string
	for p := range seen {
		all = append(all, p)
	}
	sort.Strings(all)
	for _, p := range all {
		switch seen[p] {
		case 1:
			fmt.Printf("- %s\n", p)
		case 2:
			fmt.Printf("+ %s\n", p)
		}
	}
}

func listPaths(dir string) []string {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		panic(err)
	}
	sort.Strings(paths)
	return paths
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func sha256Of(path string) string {
	f, err := os.Open(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		panic(err)
	}
	return hex.EncodeToString(h.Sum(nil))
}
