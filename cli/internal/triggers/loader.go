package triggers

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"codexreview/cli/internal/erruser"
)

// RulesFilename is the optional rules file inside the state directory.
const RulesFilename = "triggers.yaml"

// LoadRules reads stateDir/triggers.yaml. A missing file returns the zero
// Rules (built-ins only) and nil error. A file that is present but not valid
// YAML is an error so a typo does not silently disable a trigger.
func LoadRules(stateDir string) (Rules, error) {
	if stateDir == "" {
		return Rules{}, nil
	}
	p := filepath.Join(stateDir, RulesFilename)
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return Rules{}, nil
		}
		return Rules{}, erruser.New("Could not read triggers.yaml.", err)
	}
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rules{}, erruser.New("Invalid triggers.yaml.", err)
	}
	return r, nil
}
