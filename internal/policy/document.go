// Package policy loads the declarative bootstrap file that seeds admins,
// identity registries, bound assets and module configuration at startup.
package policy

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"gatekeeper/internal/compliance/modules/ruleset"
	"gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
)

// Document is the YAML bootstrap policy.
type Document struct {
	Admin     string        `yaml:"admin"`
	Topics    []TopicSpec   `yaml:"topics,omitempty"`
	Issuers   []IssuerSpec  `yaml:"issuers,omitempty"`
	Modules   []string      `yaml:"modules,omitempty"`
	Rulesets  []RulesetSpec `yaml:"rulesets,omitempty"`
	Whitelist []string      `yaml:"whitelist,omitempty"`
	Assets    []AssetSpec   `yaml:"assets,omitempty"`
}

type TopicSpec struct {
	ID   uint32 `yaml:"id"`
	Name string `yaml:"name,omitempty"`
}

type IssuerSpec struct {
	Address string   `yaml:"address"`
	Topics  []uint32 `yaml:"topics"`
}

type RulesetSpec struct {
	ruleset.AssetProfile `yaml:",inline"`
	ruleset.Ruleset      `yaml:",inline"`
}

type AssetSpec struct {
	ID            string                `yaml:"id"`
	Profile       *ruleset.AssetProfile `yaml:"profile,omitempty"`
	MaxHolders    uint32                `yaml:"max_holders,omitempty"`
	Jurisdictions *JurisdictionSpec     `yaml:"jurisdictions,omitempty"`
	Expression    string                `yaml:"expression,omitempty"`
	Paused        bool                  `yaml:"paused,omitempty"`
}

type JurisdictionSpec struct {
	Allowed []string `yaml:"allowed,omitempty"`
	Denied  []string `yaml:"denied,omitempty"`
}

// Load reads and parses the policy file at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %q: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse policy %q: %w", path, err)
	}
	return doc, nil
}

// Parse decodes a policy document. Unknown keys are rejected.
func Parse(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed policy document")
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks every identifier the document names before anything is applied.
func (d *Document) Validate() error {
	if _, err := domain.ParseAddress(d.Admin); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "policy admin")
	}
	for _, t := range d.Topics {
		if t.ID == 0 {
			return dErrors.New(dErrors.CodeInvalidInput, "policy topic cannot be zero")
		}
	}
	for _, is := range d.Issuers {
		if _, err := domain.ParseAddress(is.Address); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "policy issuer")
		}
		if len(is.Topics) == 0 {
			return dErrors.New(dErrors.CodeInvalidInput, "issuer "+is.Address+" needs at least one topic")
		}
	}
	for _, m := range d.Modules {
		if _, err := domain.ParseModuleID(m); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "policy module")
		}
	}
	for _, r := range d.Rulesets {
		if err := r.AssetProfile.Normalize().Validate(); err != nil {
			return err
		}
		if err := r.Ruleset.Validate(); err != nil {
			return err
		}
	}
	for _, w := range d.Whitelist {
		if _, err := domain.ParseAddress(w); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "policy whitelist")
		}
	}
	for _, a := range d.Assets {
		if _, err := domain.ParseAssetID(a.ID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "policy asset")
		}
		if a.Profile != nil {
			if err := a.Profile.Normalize().Validate(); err != nil {
				return err
			}
		}
		if a.Jurisdictions != nil {
			if _, err := a.Jurisdictions.lists(); err != nil {
				return err
			}
		}
	}
	return nil
}
