// Package action maps named directory administration actions onto the
// scripts that carry them out. It owns the action catalog, turns user
// input into script parameters and drives a run from launch to a saved
// report.RunResult.
package action

import (
	"fmt"
	"slices"
)

// Mode selects how a script's output is consumed.
type Mode int

const (
	// Buffered captures output and returns it when the script exits.
	Buffered Mode = iota
	// Streaming delivers stdout line by line while the script runs.
	Streaming
)

func (m Mode) String() string {
	if m == Streaming {
		return "streaming"
	}
	return "buffered"
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Action is one catalog entry.
type Action struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Script      string  `json:"script"`
	Fields      []Field `json:"fields"`
	Mode        Mode    `json:"mode"`
	// Tag names the ###<Tag>_START### / ###<Tag>_END### markers around
	// the script's JSON payload, if it uses them.
	Tag string `json:"tag,omitempty"`
}

// Field returns the named field.
func (a *Action) Field(name string) (Field, bool) {
	for _, f := range a.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Catalog is an ordered set of actions keyed by id.
type Catalog struct {
	actions []*Action
	byID    map[string]*Action
}

// NewCatalog builds a catalog. Ids must be unique.
func NewCatalog(actions ...*Action) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]*Action, len(actions))}
	for _, a := range actions {
		if a.ID == "" {
			return nil, fmt.Errorf("action without id")
		}
		if _, dup := c.byID[a.ID]; dup {
			return nil, fmt.Errorf("duplicate action %q", a.ID)
		}
		c.byID[a.ID] = a
		c.actions = append(c.actions, a)
	}
	return c, nil
}

// Lookup returns the action with the given id.
func (c *Catalog) Lookup(id string) (*Action, bool) {
	a, ok := c.byID[id]
	return a, ok
}

// All returns the actions in catalog order.
func (c *Catalog) All() []*Action { return slices.Clone(c.actions) }

// Scripts returns the action id to script file mapping.
func (c *Catalog) Scripts() map[string]string {
	m := make(map[string]string, len(c.actions))
	for _, a := range c.actions {
		if a.Script != "" {
			m[a.ID] = a.Script
		}
	}
	return m
}

func upnList(name, help string) Field {
	return Field{Name: name, Kind: List, Required: true, Help: help, UPN: true}
}

// Builtin returns the standard action catalog.
func Builtin() *Catalog {
	c, err := NewCatalog(
		&Action{
			ID:          "create_user",
			Title:       "Create user",
			Description: "Create a cloud user account, optionally adding it to groups.",
			Script:      "New-EntraUser.ps1",
			Fields: []Field{
				{Name: "DisplayName", Kind: Text, Required: true},
				{Name: "UserPrincipalName", Kind: Text, Required: true},
				{Name: "MailNickname", Kind: Text},
				{Name: "Department", Kind: Text},
				{Name: "JobTitle", Kind: Text},
				{Name: "UsageLocation", Kind: Text, Help: "two-letter country code"},
				{Name: "PasswordBase64", Kind: Secret, Required: true, Help: "initial password"},
				{Name: "GroupNames", Kind: List},
				{Name: "ForceChangePassword", Kind: Toggle},
			},
		},
		&Action{
			ID:          "disable_user",
			Title:       "Disable user",
			Description: "Block sign-in for one or more users.",
			Script:      "Disable-EntraUser.ps1",
			Fields: []Field{
				upnList("UserPrincipalName", "users to disable"),
				{Name: "RevokeSessions", Kind: Toggle, Help: "also revoke refresh tokens"},
			},
		},
		&Action{
			ID:          "assign_groups",
			Title:       "Assign groups",
			Description: "Add users to groups by display name.",
			Script:      "Add-GroupMembership.ps1",
			Fields: []Field{
				upnList("UserPrincipalName", ""),
				{Name: "GroupNames", Kind: List, Required: true},
			},
		},
		&Action{
			ID:          "compare_groups",
			Title:       "Compare groups",
			Description: "Compare the group memberships of two users.",
			Script:      "Compare-GroupMembership.ps1",
			Fields: []Field{
				{Name: "ReferenceUser", Kind: Text, Required: true, UPN: true},
				{Name: "DifferenceUser", Kind: Text, Required: true, UPN: true},
			},
		},
		&Action{
			ID:          "assign_access_packages",
			Title:       "Assign access packages",
			Description: "Request entitlement management access packages for users.",
			Script:      "Add-AccessPackageAssignment.ps1",
			Fields: []Field{
				upnList("UserPrincipalName", ""),
				{Name: "AccessPackageNames", Kind: List, Required: true},
				{Name: "Justification", Kind: Text},
			},
		},
		&Action{
			ID:          "generate_tap",
			Title:       "Generate temporary access pass",
			Description: "Issue a Temporary Access Pass for a user.",
			Script:      "New-TemporaryAccessPass.ps1",
			Tag:         "TAP",
			Fields: []Field{
				{Name: "UserPrincipalName", Kind: Text, Required: true, UPN: true},
				{Name: "LifetimeInMinutes", Kind: Text, Help: "10 to 43200, tenant default when empty"},
				{Name: "IsUsableOnce", Kind: Toggle},
			},
		},
		&Action{
			ID:          "reset_password",
			Title:       "Reset password",
			Description: "Set a new password for one or more users.",
			Script:      "Reset-UserPassword.ps1",
			Fields: []Field{
				upnList("UserPrincipalName", ""),
				{Name: "NewPasswordBase64", Kind: Secret, Required: true, Help: "new password"},
				{Name: "ForceChangePasswordNextSignIn", Kind: Toggle},
			},
		},
		&Action{
			ID:          "revoke_sessions",
			Title:       "Revoke sessions",
			Description: "Invalidate refresh tokens and session cookies.",
			Script:      "Revoke-UserSessions.ps1",
			Fields: []Field{
				upnList("UserPrincipalName", ""),
			},
		},
		&Action{
			ID:          "get_laps_password",
			Title:       "Get LAPS password",
			Description: "Read the local administrator password of a managed device.",
			Script:      "Get-LapsPassword.ps1",
			Fields: []Field{
				{Name: "DeviceName", Kind: Text, Required: true},
			},
		},
		&Action{
			ID:          "grant_mailbox_delegation",
			Title:       "Grant mailbox delegation",
			Description: "Give users access to a shared or user mailbox.",
			Script:      "Grant-MailboxDelegation.ps1",
			Fields: []Field{
				{Name: "Mailbox", Kind: Text, Required: true, UPN: true},
				upnList("Delegates", "users receiving access"),
				{Name: "AccessRights", Kind: Text, Help: "FullAccess, SendAs or SendOnBehalf"},
				{Name: "AutoMapping", Kind: Toggle},
			},
		},
		&Action{
			ID:          "bulk_create_users",
			Title:       "Bulk create users",
			Description: "Create users from a CSV file, reporting progress per row.",
			Script:      "Import-BulkUsers.ps1",
			Mode:        Streaming,
			Fields: []Field{
				{Name: "CsvPath", Kind: Text, Required: true, Help: "CSV with a header row"},
				{Name: "GroupNames", Kind: List, Help: "groups every new user joins"},
			},
		},
	)
	if err != nil {
		panic(err)
	}
	return c
}
