package skills

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SkillFilename is the file a skill directory must contain to be
// discovered.
const SkillFilename = "SKILL.md"

const frontmatterDelimiter = "---"

// FSDiscoverer discovers skills from subdirectories of Root, each holding
// a SKILL.md file with YAML frontmatter.
type FSDiscoverer struct {
	Root string
}

// NewFSDiscoverer constructs a Discoverer rooted at dir.
func NewFSDiscoverer(dir string) *FSDiscoverer {
	return &FSDiscoverer{Root: dir}
}

// Discover walks Root's immediate subdirectories and parses every
// SKILL.md found. A missing Root is not an error: it is treated as zero
// skills, since a fresh checkout may not have a skills directory yet.
func (d *FSDiscoverer) Discover() ([]Skill, error) {
	entries, err := os.ReadDir(d.Root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("skills: read %s: %w", d.Root, err)
	}

	var out []Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(d.Root, entry.Name(), SkillFilename)
		skill, err := parseSkillFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, skill)
	}
	return out, nil
}

func parseSkillFile(path string) (Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Skill{}, err
	}

	frontmatter, _, err := splitFrontmatter(data)
	if err != nil {
		return Skill{}, fmt.Errorf("skills: parse %s: %w", path, err)
	}

	var fm struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	}
	if err := yaml.Unmarshal(frontmatter, &fm); err != nil {
		return Skill{}, fmt.Errorf("skills: parse frontmatter of %s: %w", path, err)
	}
	if fm.Name == "" {
		return Skill{}, fmt.Errorf("skills: %s: name is required", path)
	}

	return Skill{Name: fm.Name, Description: fm.Description, FilePath: path}, nil
}

// splitFrontmatter separates the leading "---"-delimited YAML block from
// the rest of a SKILL.md file.
func splitFrontmatter(data []byte) (frontmatter []byte, body []byte, err error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("empty file")
	}
	if strings.TrimSpace(scanner.Text()) != frontmatterDelimiter {
		return nil, nil, fmt.Errorf("missing opening frontmatter delimiter")
	}

	var fmLines []string
	closed := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == frontmatterDelimiter {
			closed = true
			break
		}
		fmLines = append(fmLines, line)
	}
	if !closed {
		return nil, nil, fmt.Errorf("missing closing frontmatter delimiter")
	}

	var bodyLines []string
	for scanner.Scan() {
		bodyLines = append(bodyLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	return []byte(strings.Join(fmLines, "\n")), []byte(strings.Join(bodyLines, "\n")), nil
}
