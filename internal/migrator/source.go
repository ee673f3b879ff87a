package migrator

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

var (
	upMarker   = regexp.MustCompile(`(?i)^\s*--\s*up\s*$`)
	downMarker = regexp.MustCompile(`(?i)^\s*--\s*down\s*$`)
)

// Script is a parsed migration file.
type Script struct {
	Up   []string
	Down []string
}

// ParseScript splits a migration file into its up and down statements.
func ParseScript(content string) Script {
	var up, down strings.Builder
	target := &up
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case downMarker.MatchString(line):
			target = &down
			continue
		case upMarker.MatchString(line) && target == &up:
			up.Reset()
			continue
		}
		target.WriteString(line)
		target.WriteByte('\n')
	}
	return Script{
		Up:   SplitStatements(up.String()),
		Down: SplitStatements(down.String()),
	}
}

// SplitStatements splits on semicolons outside quotes and comments and drops
// statements that are empty or only comments.
func SplitStatements(script string) []string {
	statements := []string{}
	var current strings.Builder
	hasCode := false

	flush := func() {
		if hasCode {
			statements = append(statements, strings.TrimSpace(current.String()))
		}
		current.Reset()
		hasCode = false
	}

	runes := []rune(script)
	for index := 0; index < len(runes); index++ {
		char := runes[index]
		switch {
		case char == '-' && index+1 < len(runes) && runes[index+1] == '-':
			end := index
			for end < len(runes) && runes[end] != '\n' {
				end++
			}
			current.WriteString(string(runes[index:end]))
			index = end - 1
		case char == '/' && index+1 < len(runes) && runes[index+1] == '*':
			end := index + 2
			for end+1 < len(runes) && !(runes[end] == '*' && runes[end+1] == '/') {
				end++
			}
			end = min(end+2, len(runes))
			current.WriteString(string(runes[index:end]))
			index = end - 1
		case char == '\'' || char == '"' || char == '`':
			end := index + 1
			for end < len(runes) {
				if runes[end] == char {
					if end+1 < len(runes) && runes[end+1] == char {
						end += 2
						continue
					}
					break
				}
				end++
			}
			end = min(end+1, len(runes))
			current.WriteString(string(runes[index:end]))
			hasCode = true
			index = end - 1
		case char == ';':
			flush()
		default:
			current.WriteRune(char)
			if !isSpace(char) {
				hasCode = true
			}
		}
	}
	flush()
	return statements
}

func isSpace(char rune) bool {
	return char == ' ' || char == '\t' || char == '\n' || char == '\r'
}

// file is a migration found on disk.
type file struct {
	Name string
	Path string
}

// discoverFiles lists the regular files, symlinked ones included, under dir whose base name matches
// pattern, sorted by base name.
func discoverFiles(dir string, recursive bool, pattern *regexp.Regexp) ([]file, error) {
	files := []file{}
	if !recursive {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			if pattern.MatchString(entry.Name()) && isMigrationFile(path, entry) {
				files = append(files, file{Name: entry.Name(), Path: path})
			}
		}
	} else {
		err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if pattern.MatchString(entry.Name()) && isMigrationFile(path, entry) {
				files = append(files, file{Name: entry.Name(), Path: path})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.SliceStable(files, func(left, right int) bool {
		if files[left].Name == files[right].Name {
			return files[left].Path < files[right].Path
		}
		return files[left].Name < files[right].Name
	})
	return files, nil
}

// isMigrationFile accepts regular files and symlinks that resolve to one.
func isMigrationFile(path string, entry fs.DirEntry) bool {
	if entry.Type()&fs.ModeSymlink == 0 {
		return entry.Type().IsRegular()
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// scriptCache keeps parsed scripts by path until they are invalidated.
type scriptCache struct {
	mutex   sync.Mutex
	scripts map[string]Script
}

func newScriptCache() *scriptCache {
	return &scriptCache{scripts: make(map[string]Script)}
}

func (cache *scriptCache) load(path string) (Script, error) {
	cache.mutex.Lock()
	script, ok := cache.scripts[path]
	cache.mutex.Unlock()
	if ok {
		return script, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Script{}, err
	}
	script = ParseScript(string(content))

	cache.mutex.Lock()
	cache.scripts[path] = script
	cache.mutex.Unlock()
	return script, nil
}

func (cache *scriptCache) invalidate(paths ...string) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	for _, path := range paths {
		delete(cache.scripts, path)
	}
}

func (cache *scriptCache) len() int {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	return len(cache.scripts)
}
