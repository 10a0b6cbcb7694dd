package b2c

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/entraops/azuregraph/pkg/graph"
)

// Attribute sets for B2C user objects. An overview of all attributes:
// https://learn.microsoft.com/en-us/azure/active-directory-b2c/user-profile-attributes
var (
	// BaseUserAttributes are the default attributes fetched for every user.
	BaseUserAttributes = []string{
		"id",
		"givenName",
		"surname",
		"jobTitle",
		"mail",
		"creationType",
		"identities",
		"accountEnabled",
	}

	// ExtendedUserAttributes supplement the base set for full profiles.
	ExtendedUserAttributes = []string{"id", "ageGroup", "createdDateTime", "userType"}

	// unwantedAttributes are stripped from assembled profiles.
	unwantedAttributes = []string{
		"emails",
		"jobTitle",
		"legalAgeGroupClassification",
		"newUser",
		"ObjectId",
	}
)

// userFlowAttribute is a single /identity/userFlowAttributes entry.
type userFlowAttribute struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Type        string `json:"userFlowAttributeType"`
}

// attributeMapping relates user-flow attribute display names to their Graph
// attribute IDs. Extension attributes are stored as
// "extension_<b2c extensions app id>_<name>"; built-in attributes map to
// themselves. The reverse direction covers custom extension attributes only.
type attributeMapping struct {
	toID    map[string]string
	fromID  map[string]string
	flowIDs []string
}

// loadAttributeMapping discovers the tenant's user-flow attributes.
func loadAttributeMapping(ctx context.Context, client *graph.Client) (attributeMapping, error) {
	attrs, err := graph.ListAll[userFlowAttribute](ctx, client, "/identity/userFlowAttributes", nil)
	if err != nil {
		return attributeMapping{}, fmt.Errorf("fetch user flow attributes: %w", err)
	}

	mapping := attributeMapping{
		toID:    make(map[string]string, len(attrs)),
		fromID:  make(map[string]string),
		flowIDs: make([]string, 0, len(attrs)),
	}

	for _, attr := range attrs {
		mapping.flowIDs = append(mapping.flowIDs, attr.ID)
		if attr.Type == "builtIn" {
			mapping.toID[attr.ID] = attr.ID
			continue
		}
		displayName := strings.ToLower(attr.DisplayName)
		mapping.toID[displayName] = attr.ID
		mapping.fromID[attr.ID] = displayName
	}

	return mapping, nil
}

// displayNames returns the mapped attribute names, sorted for stable errors.
func (m attributeMapping) displayNames() []string {
	names := make([]string, 0, len(m.toID))
	for name := range m.toID {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// isCustom reports whether the attribute ID is a custom extension attribute.
func (m attributeMapping) isCustom(attributeID string) bool {
	_, ok := m.fromID[attributeID]
	return ok
}
