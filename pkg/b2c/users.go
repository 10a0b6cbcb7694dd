package b2c

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/entraops/azuregraph/internal/events"
	"github.com/entraops/azuregraph/internal/logger"
	"github.com/entraops/azuregraph/pkg/graph"
)

// maxPageSize is the largest $top value Graph accepts on /users.
const maxPageSize = 999

// EventSink receives user lifecycle notifications. *events.Fanout satisfies it.
type EventSink interface {
	Publish(ctx context.Context, evt events.Event) (int, error)
}

// Service manages Azure AD B2C user accounts through the Graph API.
type Service struct {
	client     *graph.Client
	tenantName string
	mapping    attributeMapping
	log        logger.Logger
	sink       EventSink
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithLogger installs a structured logger.
func WithLogger(log logger.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithEventSink installs a sink for user lifecycle events. Publishing is
// best effort and never fails the triggering operation.
func WithEventSink(sink EventSink) ServiceOption {
	return func(s *Service) {
		s.sink = sink
	}
}

// NewService builds the user service and discovers the tenant's user-flow
// attributes. tenantName is the issuer name, e.g. "mytenant.onmicrosoft.com".
func NewService(ctx context.Context, client *graph.Client, tenantName string, opts ...ServiceOption) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("b2c: graph client must not be nil")
	}
	if strings.TrimSpace(tenantName) == "" {
		return nil, fmt.Errorf("b2c: tenant name must not be empty")
	}

	s := &Service{
		client:     client,
		tenantName: tenantName,
		log:        &logger.NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}

	mapping, err := loadAttributeMapping(ctx, client)
	if err != nil {
		return nil, err
	}
	s.mapping = mapping

	s.log.InfoObj("user flow attributes discovered", "attributes_meta", map[string]any{
		"flow_attributes":   len(mapping.flowIDs),
		"custom_attributes": len(mapping.fromID),
	})
	return s, nil
}

// Attributes returns the base, extended and user-flow attribute IDs.
func (s *Service) Attributes() []string {
	out := make([]string, 0, len(BaseUserAttributes)+len(ExtendedUserAttributes)+len(s.mapping.flowIDs))
	out = append(out, BaseUserAttributes...)
	out = append(out, ExtendedUserAttributes...)
	out = append(out, s.mapping.flowIDs...)
	return out
}

// Identity is one entry of a user's identities collection.
type Identity struct {
	SignInType       string `json:"signInType"`
	Issuer           string `json:"issuer"`
	IssuerAssignedID string `json:"issuerAssignedId"`
}

// SearchResult is a user matched by Search.
type SearchResult struct {
	ID         string     `json:"id"`
	Identities []Identity `json:"identities"`
}

// Search finds users whose local account identity matches the email address.
func (s *Service) Search(ctx context.Context, email string) ([]SearchResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("b2c: email must not be empty")
	}

	query := url.Values{}
	query.Set("$filter", fmt.Sprintf(
		"(identities/any(i:i/issuer eq '%s' and i/issuerAssignedId eq '%s'))",
		odataQuote(s.tenantName), odataQuote(email),
	))
	query.Set("$select", "id,identities")

	var page graph.Page[SearchResult]
	if err := s.client.GetJSON(ctx, "/users", query, &page); err != nil {
		return nil, fmt.Errorf("search user by email: %w", err)
	}
	return page.Value, nil
}

// ListOptions controls List behavior.
type ListOptions struct {
	// Max limits the number of accounts fetched. 0 fetches all accounts
	// across pages; values above 999 are rejected.
	Max int
	// IncludeAttributes adds user-flow attributes (by display name) to the
	// base attribute set.
	IncludeAttributes []string
}

// List fetches local B2C accounts (creationType eq 'LocalAccount'), paged per
// 999 users. Custom extension attribute keys in the result are remapped back
// to their display names.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]map[string]any, error) {
	if opts.Max < 0 || opts.Max > maxPageSize {
		return nil, fmt.Errorf("b2c: max must be between 0 and %d", maxPageSize)
	}

	selected, err := s.selectedAttributes(opts.IncludeAttributes)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("$select", strings.Join(selected, ","))
	query.Set("$filter", "creationType eq 'LocalAccount'")

	var users []map[string]any
	if opts.Max == 0 {
		query.Set("$top", strconv.Itoa(maxPageSize))
		users, err = graph.ListAll[map[string]any](ctx, s.client, "/users", query)
	} else {
		query.Set("$top", strconv.Itoa(opts.Max))
		var page graph.Page[map[string]any]
		page, err = graph.GetPage[map[string]any](ctx, s.client, "/users", query)
		users = page.Value
	}
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	remapped := make([]map[string]any, 0, len(users))
	for _, user := range users {
		remapped = append(remapped, s.remapCustomAttributes(user))
	}
	return remapped, nil
}

// selectedAttributes merges the base set with mapped include attributes,
// preserving order and rejecting unknown names.
func (s *Service) selectedAttributes(include []string) ([]string, error) {
	selected := append([]string(nil), BaseUserAttributes...)
	seen := make(map[string]bool, len(selected))
	for _, attr := range selected {
		seen[attr] = true
	}

	for _, name := range include {
		mapped, ok := s.mapping.toID[name]
		if !ok {
			return nil, fmt.Errorf("b2c: %q is not a known attribute, only %s are allowed",
				name, strings.Join(s.mapping.displayNames(), ","))
		}
		if !seen[mapped] {
			selected = append(selected, mapped)
			seen[mapped] = true
		}
	}
	return selected, nil
}

// remapCustomAttributes replaces extension attribute keys with display names.
func (s *Service) remapCustomAttributes(user map[string]any) map[string]any {
	out := make(map[string]any, len(user))
	for attr, value := range user {
		if displayName, ok := s.mapping.fromID[attr]; ok {
			out[displayName] = value
		} else {
			out[attr] = value
		}
	}
	return out
}

// Profile fetches a full user profile. Graph omits attributes without a
// value, so the profile is rebuilt from the user-flow attribute mapping with
// explicit nulls for unset attributes; unwanted attributes are stripped.
// attrs defaults to all known attributes when nil.
func (s *Service) Profile(ctx context.Context, userID string, attrs []string) (map[string]any, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("b2c: user id must not be empty")
	}
	if attrs == nil {
		attrs = s.Attributes()
	}

	query := url.Values{}
	query.Set("$select", strings.Join(attrs, ","))

	var raw map[string]any
	if err := s.client.GetJSON(ctx, "/users/"+url.PathEscape(userID), query, &raw); err != nil {
		return nil, fmt.Errorf("fetch user profile: %w", err)
	}

	profile := make(map[string]any, len(s.mapping.toID))
	for displayName, mapped := range s.mapping.toID {
		if value, ok := raw[mapped]; ok {
			profile[displayName] = value
		} else {
			profile[displayName] = nil
		}
	}
	for _, attr := range unwantedAttributes {
		delete(profile, attr)
	}
	return profile, nil
}

// NewUser describes an account to create. Attributes are keyed by user-flow
// attribute display name (custom) or built-in attribute ID.
type NewUser struct {
	Email       string
	Password    string
	DisplayName string
	Attributes  map[string]any
}

// Create provisions a local B2C account. The email address becomes the
// sign-in identity; the password never expires and needs no reset on first
// sign-in, matching accounts created through the built-in user flows.
func (s *Service) Create(ctx context.Context, user NewUser) (map[string]any, error) {
	if strings.TrimSpace(user.Email) == "" {
		return nil, fmt.Errorf("b2c: email is required")
	}
	if user.Password == "" {
		return nil, fmt.Errorf("b2c: password is required")
	}

	payload := make(map[string]any)
	for displayName, mapped := range s.mapping.toID {
		if value, ok := user.Attributes[displayName]; ok {
			payload[mapped] = value
		}
	}

	displayName := user.DisplayName
	if displayName == "" {
		displayName = fmt.Sprintf("%v %v", user.Attributes["givenName"], user.Attributes["surname"])
	}

	payload["displayName"] = displayName
	payload["mail"] = user.Email
	payload["accountEnabled"] = true
	payload["passwordPolicies"] = "DisablePasswordExpiration"
	payload["passwordProfile"] = map[string]any{
		"password":                      user.Password,
		"forceChangePasswordNextSignIn": false,
	}
	payload["identities"] = []Identity{
		{
			SignInType:       "emailAddress",
			Issuer:           s.tenantName,
			IssuerAssignedID: user.Email,
		},
	}

	var created map[string]any
	if err := s.client.Post(ctx, "/users", payload, &created); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.emit(ctx, events.TypeUserCreated, stringValue(created["id"]), map[string]any{"mail": user.Email})
	return created, nil
}

// Update patches the provided user-flow attributes. Only fields present in
// the attribute mapping are sent; everything else remains unchanged. Graph
// answers 204, so the updated object must be re-fetched if needed.
func (s *Service) Update(ctx context.Context, userID string, fields map[string]any) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("b2c: user id must not be empty")
	}

	payload := make(map[string]any)
	for displayName, mapped := range s.mapping.toID {
		if value, ok := fields[displayName]; ok {
			payload[mapped] = value
		}
	}
	if len(payload) == 0 {
		return fmt.Errorf("b2c: no mapped attributes to update")
	}

	if err := s.client.Patch(ctx, "/users/"+url.PathEscape(userID), payload); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	s.emit(ctx, events.TypeUserUpdated, userID, map[string]any{"fields": len(payload)})
	return nil
}

// Delete removes the user account.
func (s *Service) Delete(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("b2c: user id must not be empty")
	}

	if err := s.client.Delete(ctx, "/users/"+url.PathEscape(userID)); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	s.emit(ctx, events.TypeUserDeleted, userID, nil)
	return nil
}

// ChangePassword sets a new password without forcing a reset on next sign-in.
// The app registration needs the User Administrator role for this call.
func (s *Service) ChangePassword(ctx context.Context, userID, password string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("b2c: user id must not be empty")
	}
	if password == "" {
		return fmt.Errorf("b2c: password must not be empty")
	}

	payload := map[string]any{
		"passwordProfile": map[string]any{
			"password":                      password,
			"forceChangePasswordNextSignIn": false,
		},
	}
	if err := s.client.Patch(ctx, "/users/"+url.PathEscape(userID), payload); err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	s.emit(ctx, events.TypeUserPasswordChanged, userID, nil)
	return nil
}

// emit publishes a lifecycle event, logging failures without propagating them.
func (s *Service) emit(ctx context.Context, eventType, userID string, details map[string]any) {
	if s.sink == nil {
		return
	}
	evt := events.New(eventType, userID, s.tenantName, details)
	if _, err := s.sink.Publish(ctx, evt); err != nil {
		s.log.WarnObj("lifecycle event publish failed", "event_error", map[string]any{
			"event_type": eventType,
			"user_id":    userID,
			"error":      err.Error(),
		})
	}
}

// odataQuote escapes single quotes inside an OData string literal.
func odataQuote(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
