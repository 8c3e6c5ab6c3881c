package directory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the reference data loaded by the migrate command.
type Seed struct {
	Colleges []SeedCollege `yaml:"colleges"`
}

type SeedCollege struct {
	College `yaml:",inline"`
	Courses []Course `yaml:"courses"`
}

// LoadSeed reads a YAML seed file.
func LoadSeed(path string) (Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(raw)
}

func ParseSeed(raw []byte) (Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed: %w", err)
	}
	for i, c := range seed.Colleges {
		if c.ID <= 0 || c.Name == "" {
			return Seed{}, fmt.Errorf("seed college #%d: id and name are required", i+1)
		}
		if err := c.Location().Point.Validate(); err != nil {
			return Seed{}, fmt.Errorf("seed college %d: %w", c.ID, err)
		}
		if c.CollegeType == "" {
			seed.Colleges[i].CollegeType = Others
		}
		for _, course := range c.Courses {
			if course.ID <= 0 || course.Name == "" {
				return Seed{}, fmt.Errorf("seed college %d: course id and name are required", c.ID)
			}
		}
	}
	return seed, nil
}
