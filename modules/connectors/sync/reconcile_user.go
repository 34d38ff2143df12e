package sync

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/campusworks/campus-sdk/modules/connectors/domain/mapping"
	"github.com/campusworks/campus-sdk/modules/connectors/rowmap"
	"github.com/campusworks/campus-sdk/modules/people/domain/aggregates/user"
	"github.com/campusworks/campus-sdk/modules/people/domain/entities/emailaddress"
	"github.com/campusworks/campus-sdk/modules/people/domain/entities/group"
	"github.com/campusworks/campus-sdk/pkg/capitalize"
)

// personKind selects the row source and creation path for a person pass.
type personKind int

const (
	kindStudent personKind = iota
	kindAlumnus
	kindStaff
)

// personChanges collects the side records a person row produced. The
// pass loop persists them only after the user validated, and only when
// not pretending.
type personChanges struct {
	newGroups   []*group.Group
	memberships []*group.Group
	email       *emailaddress.EmailAddress
}

var birthDateFormats = []string{
	"2006-01-02",
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
	"Jan 2, 2006",
	"January 2, 2006",
}

func parseBirthDate(value string) (time.Time, bool) {
	for _, format := range birthDateFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// applyUser reconciles one normalized row onto a new or existing user.
// It mutates the user in memory and returns the side records to persist;
// unrecoverable per-row problems come back as *RemoteRecordInvalid.
func (e *Engine) applyUser(ctx context.Context, u *user.User, row rowmap.Row, res *Result) (*personChanges, error) {
	changes := &personChanges{}
	cfg := e.job.Config

	// Names.
	if first := row.Get(FieldFirstName); first != "" {
		if cfg.AutoCapitalize {
			first = capitalize.Name(first)
		}
		u.FirstName = first
	}
	if last := row.Get(FieldLastName); last != "" {
		if cfg.AutoCapitalize {
			last = capitalize.FamilyName(last)
		}
		u.LastName = last
	}
	if middle := row.Get(FieldMiddleName); middle != "" {
		if cfg.AutoCapitalize {
			middle = capitalize.Name(middle)
		}
		u.MiddleName = middle
	}
	if preferred := row.Get(FieldPreferredName); preferred != "" {
		if cfg.AutoCapitalize {
			preferred = capitalize.Name(preferred)
		}
		u.PreferredName = preferred
	}

	// Account level: only values from the permitted set are accepted;
	// anything else is left alone rather than downgrading an account
	// silently.
	if level := row.Get(FieldAccountLevel); level != "" {
		if parsed := user.AccountLevel(level); parsed.Valid() {
			u.AccountLevel = parsed
			if u.Phantom {
				e.job.Debug("initializing account level to {accountLevel}", map[string]any{
					"accountLevel": level,
				})
			}
		} else {
			e.job.Warning("ignoring unknown account level {level} for {user}", map[string]any{
				"level": level,
				"user":  u.Title(),
			})
		}
	}

	if err := e.applyPassword(u, row, res); err != nil {
		return nil, err
	}

	// Gender: single-letter codes map to full words, anything else is
	// ignored.
	switch row.Get(FieldGender) {
	case "M":
		u.Gender = "Male"
	case "F":
		u.Gender = "Female"
	}

	if raw := row.Get(FieldBirthDate); raw != "" {
		if date, ok := parseBirthDate(raw); ok {
			u.BirthDate = &date
		} else {
			e.job.Warning("unparseable birth date {value} for {user}", map[string]any{
				"value": raw,
				"user":  u.Title(),
			})
		}
	}

	if about := row.Get(FieldAbout); about != "" && (u.About == "" || cfg.UpdateAbout) {
		u.About = about
	}

	if sn := row.Get(FieldStudentNumber); sn != "" && u.IsStudent() {
		u.StudentNumber = sn
	}

	if err := e.applyGraduationYear(ctx, u, row); err != nil {
		return nil, err
	}

	if err := e.applyAdvisor(ctx, u, row); err != nil {
		return nil, err
	}

	if err := e.applyUsername(ctx, u, row); err != nil {
		return nil, err
	}

	if err := e.applyPrimaryEmail(ctx, u, row, changes); err != nil {
		return nil, err
	}

	if err := e.applyGroups(ctx, u, row, changes, res); err != nil {
		return nil, err
	}

	return changes, nil
}

// applyGraduationYear takes the explicit year when supplied, else derives
// it from the grade level against the current master term's graduating
// class. Either on a non-student is a row failure.
func (e *Engine) applyGraduationYear(ctx context.Context, u *user.User, row rowmap.Row) error {
	year := 0
	if raw := row.Get(FieldGraduationYear); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			e.job.Warning("unparseable graduation year {value}", map[string]any{"value": raw})
			return nil
		}
		year = parsed
	} else if raw := row.Get(FieldGrade); raw != "" {
		grade, err := strconv.Atoi(raw)
		if err != nil {
			e.job.Warning("unparseable grade level {value}", map[string]any{"value": raw})
			return nil
		}
		current, err := e.store.Terms.ClosestGraduationYear(ctx)
		if err != nil {
			return errors.Wrap(err, "resolving current graduation year")
		}
		year = current + (12 - grade)
	}

	if year == 0 {
		return nil
	}
	if !u.IsStudent() {
		return invalidRecord(row, ReasonNotAStudent, strconv.Itoa(year),
			"tried to set graduation year %d on user %s, but user is not a student", year, u.Title())
	}
	u.GraduationYear = year
	return nil
}

// applyAdvisor resolves the row's advisor reference, trying username,
// foreign-key mapping, name pair, then parsed full name. Each miss is a
// distinct row failure carrying the attempted value.
func (e *Engine) applyAdvisor(ctx context.Context, u *user.User, row rowmap.Row) error {
	var advisor *user.User

	switch {
	case row.Has(FieldAdvisorUsername):
		username := row.Get(FieldAdvisorUsername)
		found, err := e.lookupUserByUsername(ctx, username)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return invalidRecord(row, ReasonAdvisorNotByUsername, username,
					"advisor not found for username %q", username)
			}
			return err
		}
		advisor = found

	case row.Has(FieldAdvisorForeignKey):
		fk := row.Get(FieldAdvisorForeignKey)
		m, err := e.store.Mappings.Find(ctx, e.job.Connector, mapping.PersonForeignKey, fk)
		if err != nil {
			if errors.Is(err, mapping.ErrNotFound) {
				return invalidRecord(row, ReasonAdvisorNotByForeignKey, fk,
					"advisor not found for foreign key %q", fk)
			}
			return err
		}
		found, err := e.store.Users.GetByID(ctx, m.ContextID)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return invalidRecord(row, ReasonAdvisorNotByForeignKey, fk,
					"advisor mapping %q points at a missing user", fk)
			}
			return err
		}
		advisor = found

	case row.Has(FieldAdvisorFirstName) && row.Has(FieldAdvisorLastName):
		first, last := row.Get(FieldAdvisorFirstName), row.Get(FieldAdvisorLastName)
		found, err := e.store.Users.GetByFullName(ctx, first, last)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return invalidRecord(row, ReasonAdvisorNotByName, first+" "+last,
					"advisor not found for full name %q", first+" "+last)
			}
			return err
		}
		advisor = found

	case row.Has(FieldAdvisorFullName):
		full := row.Get(FieldAdvisorFullName)
		first, last := user.ParseFullName(full)
		found, err := e.store.Users.GetByFullName(ctx, first, last)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return invalidRecord(row, ReasonAdvisorNotByName, full,
					"advisor not found for full name %q", full)
			}
			return err
		}
		advisor = found

	default:
		return nil
	}

	id := advisor.ID
	u.AdvisorID = &id
	return nil
}

func (e *Engine) applyUsername(ctx context.Context, u *user.User, row rowmap.Row) error {
	supplied := row.Get(FieldUsername)
	switch {
	case u.Username == "" && supplied != "":
		u.Username = supplied
	case u.Username == "":
		generated, err := user.UniqueUsername(ctx, e.store.Users, u)
		if err != nil {
			return errors.Wrap(err, "generating username")
		}
		u.Username = generated
		e.job.Debug("assigned username {username}", map[string]any{"username": generated})
	case supplied != "" && supplied != u.Username && e.job.Config.UpdateUsernames:
		u.Username = supplied
	}
	return nil
}

// applyPassword stores a supplied password on new accounts and, under
// the update-passwords policy, replaces changed ones. A supplied
// password that already verifies is left alone to avoid a pointless
// rehash and a noisy delta. New accounts without a supplied password get
// a temporary one so the record can validate.
func (e *Engine) applyPassword(u *user.User, row rowmap.Row, res *Result) error {
	supplied := row.Get(FieldPassword)
	if supplied != "" && (u.Phantom || (e.job.Config.UpdatePasswords && !u.VerifyPassword(supplied))) {
		if err := u.SetPassword(supplied); err != nil {
			return err
		}
		res.PasswordsUpdated++
	}
	if u.Phantom && u.PasswordHash == "" {
		return u.SetTemporaryPassword()
	}
	return nil
}

// applyPrimaryEmail sets or replaces the primary address from the row,
// or synthesizes one on the school domain under the auto-assign policy.
// A school-domain address whose local part drifted from the username is
// regenerated only when usernames are being updated too. The touched
// contact point lands in the changeset; the pass loop delta-logs it and
// counts the outcome.
func (e *Engine) applyPrimaryEmail(ctx context.Context, u *user.User, row rowmap.Row, changes *personChanges) error {
	var primary *emailaddress.EmailAddress
	if !u.Phantom {
		existing, err := e.lookupPrimaryEmail(ctx, u.ID)
		if err != nil && !errors.Is(err, emailaddress.ErrNotFound) {
			return err
		}
		if existing != nil {
			e.job.Observe(existing)
		}
		primary = existing
	}

	if supplied := row.Get(FieldEmail); supplied != "" {
		if primary == nil {
			point := emailaddress.New(supplied, "Imported Email")
			point.UserID = u.ID
			point.Primary = true
			changes.email = point
			return nil
		}
		if !emailaddress.Equal(primary.Address, supplied) {
			primary.Address = supplied
		}
		changes.email = primary
		return nil
	}

	if !e.job.Config.AutoAssignEmail || e.emailDomain == "" || u.Username == "" {
		return nil
	}
	generated := u.Username + "@" + e.emailDomain
	switch {
	case primary == nil:
		point := emailaddress.New(generated, "School Email")
		point.UserID = u.ID
		point.Primary = true
		changes.email = point
		e.job.Debug("assigned auto-generated email address {email}", map[string]any{"email": generated})
	case primary.Domain() == e.emailDomain && primary.LocalPart() != u.Username && e.job.Config.UpdateUsernames:
		primary.Address = generated
		changes.email = primary
	}
	return nil
}

// applyGroups places the user in the hierarchical group tree: students
// land under the students root (or alumni once their class graduated)
// with optional graduation-class and cohort subgroups, staff under the
// staff or teachers root. Existing membership in the target group or any
// of its descendants is left untouched.
func (e *Engine) applyGroups(ctx context.Context, u *user.User, row rowmap.Row, changes *personChanges, res *Result) error {
	var target *group.Group

	switch {
	case u.IsStudent():
		rootHandle := e.preset.StudentsRootGroup
		if u.GraduationYear != 0 {
			current, err := e.store.Terms.ClosestGraduationYear(ctx)
			if err != nil {
				return errors.Wrap(err, "resolving current graduation year")
			}
			if u.GraduationYear < current {
				rootHandle = e.preset.AlumniRootGroup
			}
		}
		rootHandle, err := e.schoolGroupHandle(row, rootHandle, ReasonStudentSchoolNotSet, ReasonStudentSchoolNotFound)
		if err != nil {
			return err
		}
		if rootHandle == "" {
			return nil
		}

		target, err = e.lookupGroupByHandle(ctx, rootHandle)
		if err != nil {
			if errors.Is(err, group.ErrNotFound) {
				return invalidRecord(row, ReasonStudentGroupNotFound, rootHandle,
					"student root group %q does not exist", rootHandle)
			}
			return err
		}

		if e.preset.StudentsGraduationYearGroups && u.GraduationYear != 0 {
			target, err = e.childGroup(ctx, target, group.GraduationClassHandle(u.GraduationYear),
				"Class of "+strconv.Itoa(u.GraduationYear), changes)
			if err != nil {
				return err
			}
		}

		if cohort := row.Get(FieldCohort); cohort != "" {
			child, err := e.store.Groups.GetByParentAndName(ctx, target.ID, cohort)
			if err == nil {
				target = child
			} else {
				if !errors.Is(err, group.ErrNotFound) {
					return err
				}
				target, err = e.childGroup(ctx, target, target.Handle+"_"+group.HandleFromName(cohort), cohort, changes)
				if err != nil {
					return err
				}
			}
		}

	case u.AccountLevel.IsStaff():
		rootHandle := e.preset.StaffRootGroup
		if u.AccountLevel == user.AccountLevelTeacher {
			rootHandle = e.preset.TeachersRootGroup
		}
		rootHandle, err := e.schoolGroupHandle(row, rootHandle, ReasonStaffSchoolNotSet, ReasonStaffSchoolNotFound)
		if err != nil {
			return err
		}
		if rootHandle == "" {
			return nil
		}

		target, err = e.lookupGroupByHandle(ctx, rootHandle)
		if err != nil {
			if errors.Is(err, group.ErrNotFound) {
				return invalidRecord(row, ReasonStaffGroupNotFound, rootHandle,
					"staff root group %q does not exist", rootHandle)
			}
			return err
		}

	default:
		return nil
	}

	member, err := e.hasMembership(ctx, target, u.ID)
	if err != nil {
		return err
	}
	if member {
		return nil
	}

	e.scratch.memberships[pairKey(target.ID, u.ID)] = true
	changes.memberships = append(changes.memberships, target)
	res.AddToGroup(target.Name)
	e.job.Notice("add {user} to group {group}", map[string]any{
		"user":  u.Title(),
		"group": target.Name,
	})
	return nil
}

// schoolGroupHandle swaps the kind's default root group for a
// school-specific one when the preset maps groups by school. A missing
// or unmapped school is then a row failure.
func (e *Engine) schoolGroupHandle(row rowmap.Row, fallback, notSetReason, notFoundReason string) (string, error) {
	if len(e.preset.GroupsBySchool) == 0 {
		return fallback, nil
	}
	school := row.Get(FieldSchool)
	if school == "" {
		return "", invalidRecord(row, notSetReason, "", "row does not have a school set")
	}
	handle, ok := e.preset.GroupsBySchool[school]
	if !ok {
		return "", invalidRecord(row, notFoundReason, school, "school %q does not exist", school)
	}
	return handle, nil
}

// childGroup finds or creates a named subgroup of parent. Creation is
// in-memory; the pass loop persists it with the rest of the changeset.
func (e *Engine) childGroup(ctx context.Context, parent *group.Group, handle, name string, changes *personChanges) (*group.Group, error) {
	child, err := e.lookupGroupByHandle(ctx, handle)
	if err == nil {
		return child, nil
	}
	if !errors.Is(err, group.ErrNotFound) {
		return nil, err
	}

	child = group.NewChild(parent, handle, name)
	e.scratch.groupsByHandle[handle] = child
	changes.newGroups = append(changes.newGroups, child)
	e.job.Notice("create group {group} under {parent}", map[string]any{
		"group":  name,
		"parent": parent.Name,
	})
	return child, nil
}

// persistPersonChanges writes the side records of one accepted person
// row. Never called in pretend mode.
func (e *Engine) persistPersonChanges(ctx context.Context, u *user.User, changes *personChanges) error {
	for _, g := range changes.newGroups {
		if err := e.store.Groups.Save(ctx, g); err != nil {
			return err
		}
	}
	for _, g := range changes.memberships {
		if err := e.store.Groups.AddMember(ctx, g.ID, u.ID); err != nil {
			return err
		}
	}
	if changes.email != nil {
		if err := e.store.Emails.Save(ctx, changes.email); err != nil {
			return err
		}
	}
	return nil
}
