package user

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusworks/campus-sdk/pkg/types"
)

type AccountLevel string

const (
	AccountLevelUser          AccountLevel = "User"
	AccountLevelStaff         AccountLevel = "Staff"
	AccountLevelTeacher       AccountLevel = "Teacher"
	AccountLevelAdministrator AccountLevel = "Administrator"
)

// AccountLevels lists the values accepted from imported data.
var AccountLevels = []AccountLevel{
	AccountLevelUser,
	AccountLevelStaff,
	AccountLevelTeacher,
	AccountLevelAdministrator,
}

func (l AccountLevel) Valid() bool {
	for _, known := range AccountLevels {
		if l == known {
			return true
		}
	}
	return false
}

// IsStaff reports whether the level grants staff access (teachers and
// administrators included).
func (l AccountLevel) IsStaff() bool {
	return l == AccountLevelStaff || l == AccountLevelTeacher || l == AccountLevelAdministrator
}

type Kind string

const (
	KindUser    Kind = "user"
	KindStudent Kind = "student"
)

type User struct {
	ID            uuid.UUID
	Kind          Kind
	Username      string
	PasswordHash  string
	AccountLevel  AccountLevel
	FirstName     string
	LastName      string
	MiddleName    string
	PreferredName string
	Gender        string
	BirthDate     *time.Time
	About         string

	StudentNumber  string
	GraduationYear int
	AdvisorID      *uuid.UUID

	CreatedAt time.Time
	UpdatedAt time.Time

	// Phantom marks a record that has not been persisted yet.
	Phantom bool
}

func New(kind Kind, level AccountLevel) *User {
	return &User{
		ID:           uuid.New(),
		Kind:         kind,
		AccountLevel: level,
		Phantom:      true,
	}
}

func NewStudent() *User {
	return New(KindStudent, AccountLevelUser)
}

func NewStaff() *User {
	return New(KindUser, AccountLevelStaff)
}

func (u *User) IsStudent() bool {
	return u.Kind == KindStudent
}

// Title returns the user's display name.
func (u *User) Title() string {
	first := u.FirstName
	if u.PreferredName != "" {
		first = u.PreferredName
	}
	if first == "" && u.LastName == "" {
		return u.Username
	}
	if u.LastName == "" {
		return first
	}
	return first + " " + u.LastName
}

func (u *User) SetPassword(clear string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(clear), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// VerifyPassword reports whether the clear text matches the stored hash.
func (u *User) VerifyPassword(clear string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(clear)) == nil
}

// SetTemporaryPassword assigns a random password to a new account so the
// record can pass validation before the user claims it.
func (u *User) SetTemporaryPassword() error {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return err
	}
	return u.SetPassword(hex.EncodeToString(buf))
}

var usernameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

func (u *User) Validate() []types.InvalidField {
	var invalid []types.InvalidField
	if u.FirstName == "" {
		invalid = append(invalid, types.InvalidField{Field: "FirstName", Problem: "required"})
	}
	if u.LastName == "" {
		invalid = append(invalid, types.InvalidField{Field: "LastName", Problem: "required"})
	}
	if u.Username != "" && !usernameRe.MatchString(u.Username) {
		invalid = append(invalid, types.InvalidField{Field: "Username", Problem: u.Username})
	}
	if !u.AccountLevel.Valid() {
		invalid = append(invalid, types.InvalidField{Field: "AccountLevel", Problem: string(u.AccountLevel)})
	}
	return invalid
}

// RecordKind and AuditFields feed the connector audit log.
func (u *User) RecordKind() string { return "user" }

func (u *User) RecordID() uuid.UUID { return u.ID }

func (u *User) IsPhantom() bool { return u.Phantom }

func (u *User) RecordTitle() string { return u.Title() }

func (u *User) AuditFields() map[string]any {
	fields := map[string]any{
		"Username":      u.Username,
		"AccountLevel":  string(u.AccountLevel),
		"FirstName":     u.FirstName,
		"LastName":      u.LastName,
		"MiddleName":    u.MiddleName,
		"PreferredName": u.PreferredName,
		"Gender":        u.Gender,
		"About":         u.About,
	}
	if u.BirthDate != nil {
		fields["BirthDate"] = u.BirthDate.Format("2006-01-02")
	}
	if u.StudentNumber != "" {
		fields["StudentNumber"] = u.StudentNumber
	}
	if u.GraduationYear != 0 {
		fields["GraduationYear"] = u.GraduationYear
	}
	if u.AdvisorID != nil {
		fields["AdvisorID"] = u.AdvisorID.String()
	}
	return fields
}
