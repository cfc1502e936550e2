package model

import "time"

// Check attributes written by the provisioning workflow.
const (
	AttrCleartextPassword = "Cleartext-Password"
	OpSet                 = ":="
	DefaultGroup          = "users"
)

// CheckAttribute is one radcheck row.
type CheckAttribute struct {
	ID        int64  `json:"id"`
	Attribute string `json:"attribute"`
	Op        string `json:"op"`
	Value     string `json:"value"`
}

// Credential is a subscriber login identity: its check attributes plus its
// owning group.
type Credential struct {
	Username   string           `json:"username"`
	Attributes []CheckAttribute `json:"attributes"`
	Group      string           `json:"groupname"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Password returns the cleartext password attribute value, if any.
func (c Credential) Password() (string, bool) {
	for _, a := range c.Attributes {
		if a.Attribute == AttrCleartextPassword {
			return a.Value, true
		}
	}
	return "", false
}

// GroupMembership ties a username to an authorization group.
type GroupMembership struct {
	Username  string `json:"username"`
	Groupname string `json:"groupname"`
	Priority  int    `json:"priority"`
}

// CredentialUpdate carries the optional fields of an update. Nil fields leave
// the corresponding row untouched.
type CredentialUpdate struct {
	Password *string `json:"password,omitempty"`
	Group    *string `json:"groupname,omitempty"`
}

// Audit actions.
const (
	AuditCreate = "create"
	AuditUpdate = "update"
	AuditDelete = "delete"
)

// AuditEvent records a committed provisioning write.
type AuditEvent struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Username  string    `json:"username"`
	Group     string    `json:"groupname,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
