package harness

import (
	"bytes"
	"os"
	"slices"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Scenario defines a multi-user sync scenario.
// Steps run in order against fresh in-memory stores, then assertions are
// evaluated against the stores' final contents.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Document is the id of the document every client edits.
	Document string `yaml:"document"`

	// PartSizeLimit overrides the default part size limit when positive.
	PartSizeLimit int64 `yaml:"part_size_limit,omitempty"`

	// Users maps user names to their store settings. Each user owns one
	// store.
	Users map[string]User `yaml:"users"`

	// Clients maps client ids to the user they belong to.
	Clients map[string]string `yaml:"clients"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// User configures one user's store.
type User struct {
	// Label is written into the indexes saved by the user's clients.
	Label string `yaml:"label,omitempty"`

	// PublicURL makes the store publish files under this base URL.
	PublicURL string `yaml:"public_url,omitempty"`

	// DeferredPublish models stores that reveal URLs only on publish.
	DeferredPublish bool `yaml:"deferred_publish,omitempty"`
}

// Step is one action by one client. Exactly one of the action fields is
// set, or none when the step only carries an expect clause.
type Step struct {
	Client string `yaml:"client"`

	Set     map[string]string `yaml:"set,omitempty"`
	Delete  []string          `yaml:"delete,omitempty"`
	Save    bool              `yaml:"save,omitempty"`
	Merge   string            `yaml:"merge,omitempty"`
	Restore *RestoreStep      `yaml:"restore,omitempty"`
	Import  string            `yaml:"import,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// RestoreStep rebuilds a client's document from its user's store.
type RestoreStep struct {
	// Client whose history is restored. Empty means the most recent
	// writer of the master index.
	Client string `yaml:"client,omitempty"`
}

// Expect validates the client's state after its step.
type Expect struct {
	// Values must be present with exactly these values (subset match).
	Values map[string]string `yaml:"values,omitempty"`

	// Absent keys must not be present.
	Absent []string `yaml:"absent,omitempty"`

	MinVersion *uint64 `yaml:"min_version,omitempty"`

	// Saved checks whether a save step wrote anything.
	Saved *bool `yaml:"saved,omitempty"`

	// Error expects the step to fail. It matches a sync error code such
	// as NO_MASTER_INDEX, or else a substring of the error message.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the stores after all steps ran.
type Assertion struct {
	// Type is part_chain, part_count or master_client.
	Type string `yaml:"type"`

	// Client is checked in the store of the user it belongs to.
	Client string `yaml:"client"`

	// Count is the expected number of parts (part_count).
	Count int `yaml:"count,omitempty"`

	// Latest also requires the client to be the master's latest writer
	// (master_client).
	Latest bool `yaml:"latest,omitempty"`
}

// Assertion type constants.
const (
	AssertPartChain    = "part_chain"
	AssertPartCount    = "part_count"
	AssertMasterClient = "master_client"
)

// Merge modes.
const (
	MergeClients = "clients"
	MergePeers   = "peers"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read scenario file")
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict fields catch typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, errors.Wrap(err, "parse YAML")
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, errors.Wrap(err, "invalid scenario")
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and that
// every step and assertion refers to known clients.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if s.Document == "" {
		return errors.New("document is required")
	}
	if len(s.Users) == 0 {
		return errors.New("users map is required and must be non-empty")
	}
	if len(s.Clients) == 0 {
		return errors.New("clients map is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return errors.New("steps list is required and must be non-empty")
	}
	if s.PartSizeLimit < 0 {
		return errors.New("part_size_limit must be non-negative")
	}

	for client, user := range s.Clients {
		if _, ok := s.Users[user]; !ok {
			return errors.Newf("clients[%s]: unknown user %q", client, user)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(s, &step); err != nil {
			return errors.Wrapf(err, "steps[%d]", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(s, &a); err != nil {
			return errors.Wrapf(err, "assertions[%d]", i)
		}
	}
	return nil
}

func validateStep(s *Scenario, step *Step) error {
	if _, ok := s.Clients[step.Client]; !ok {
		return errors.Newf("unknown client %q", step.Client)
	}

	actions := 0
	for _, set := range []bool{
		len(step.Set) > 0,
		len(step.Delete) > 0,
		step.Save,
		step.Merge != "",
		step.Restore != nil,
		step.Import != "",
	} {
		if set {
			actions++
		}
	}
	switch {
	case actions > 1:
		return errors.New("only one action per step")
	case actions == 0 && step.Expect == nil:
		return errors.New("step needs an action or an expect clause")
	}

	if step.Merge != "" && !slices.Contains([]string{MergeClients, MergePeers}, step.Merge) {
		return errors.Newf("merge must be %q or %q, got %q", MergeClients, MergePeers, step.Merge)
	}
	if step.Restore != nil && step.Restore.Client != "" {
		if _, ok := s.Clients[step.Restore.Client]; !ok {
			return errors.Newf("restore: unknown client %q", step.Restore.Client)
		}
	}
	if step.Import != "" {
		if _, ok := s.Clients[step.Import]; !ok {
			return errors.Newf("import: unknown client %q", step.Import)
		}
	}
	if step.Expect != nil && step.Expect.Saved != nil && !step.Save {
		return errors.New("expect.saved is only valid on save steps")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(s *Scenario, a *Assertion) error {
	if a.Type == "" {
		return errors.New("type is required")
	}
	if _, ok := s.Clients[a.Client]; !ok {
		return errors.Newf("unknown client %q", a.Client)
	}

	switch a.Type {
	case AssertPartChain, AssertMasterClient:
	case AssertPartCount:
		if a.Count < 0 {
			return errors.New("count must be non-negative for part_count")
		}
	default:
		return errors.Newf("unknown assertion type %q", a.Type)
	}
	return nil
}
