// Package policy answers airline luggage questions from policy documents.
package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Airline is one catalog entry. Airlines without a PolicyFile are still on
// the allow-list but have no document to search.
type Airline struct {
	Name       string `yaml:"name"`
	PolicyFile string `yaml:"policy_file,omitempty"`
}

// Catalog is the process-wide airline allow-list. It is immutable after
// construction.
type Catalog struct {
	airlines []Airline
	byName   map[string]Airline
	byLower  map[string]Airline
}

type catalogFile struct {
	Airlines []Airline `yaml:"airlines"`
}

const defaultCatalogYAML = `
airlines:
  - name: IndiGo
    policy_file: indigo_policy.txt
  - name: VietJet Air
    policy_file: vietjet_policy.txt
  - name: Air India
  - name: Vietnam Airlines
  - name: Bamboo Airways
`

func DefaultCatalog() *Catalog {
	catalog, err := ParseCatalog([]byte(defaultCatalogYAML))
	if err != nil {
		panic(fmt.Sprintf("default airline catalog: %v", err))
	}
	return catalog
}

func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read airline catalog: %w", err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode airline catalog: %w", err)
	}
	return NewCatalog(file.Airlines)
}

func NewCatalog(airlines []Airline) (*Catalog, error) {
	if len(airlines) == 0 {
		return nil, fmt.Errorf("airline catalog is empty")
	}
	catalog := &Catalog{
		airlines: make([]Airline, 0, len(airlines)),
		byName:   make(map[string]Airline, len(airlines)),
		byLower:  make(map[string]Airline, len(airlines)),
	}
	for _, airline := range airlines {
		airline.Name = strings.TrimSpace(airline.Name)
		airline.PolicyFile = strings.TrimSpace(airline.PolicyFile)
		if airline.Name == "" {
			return nil, fmt.Errorf("airline catalog entry without a name")
		}
		lower := strings.ToLower(airline.Name)
		if _, dup := catalog.byLower[lower]; dup {
			return nil, fmt.Errorf("duplicate airline %q in catalog", airline.Name)
		}
		catalog.airlines = append(catalog.airlines, airline)
		catalog.byName[airline.Name] = airline
		catalog.byLower[lower] = airline
	}
	return catalog, nil
}

// Allowed reports whether name is on the allow-list exactly as written.
func (c *Catalog) Allowed(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// Find resolves an airline case-insensitively.
func (c *Catalog) Find(name string) (Airline, bool) {
	airline, ok := c.byLower[strings.ToLower(strings.TrimSpace(name))]
	return airline, ok
}

func (c *Catalog) Airlines() []Airline {
	return append([]Airline(nil), c.airlines...)
}

// Documented returns the airlines that have a policy document.
func (c *Catalog) Documented() []Airline {
	var out []Airline
	for _, airline := range c.airlines {
		if airline.PolicyFile != "" {
			out = append(out, airline)
		}
	}
	return out
}
