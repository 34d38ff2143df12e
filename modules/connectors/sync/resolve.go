package sync

import (
	"context"

	"github.com/pkg/errors"

	"github.com/campusworks/campus-sdk/modules/connectors/domain/mapping"
	"github.com/campusworks/campus-sdk/modules/connectors/rowmap"
	"github.com/campusworks/campus-sdk/modules/people/domain/aggregates/user"
	"github.com/campusworks/campus-sdk/modules/people/domain/entities/emailaddress"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/section"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/term"
)

// resolvePerson locates the existing user a row refers to, trying
// strategies from most to least specific and short-circuiting on the
// first hit. Returns (nil, nil) when no strategy matched.
func (e *Engine) resolvePerson(ctx context.Context, row rowmap.Row) (*user.User, error) {
	// 1. External-key mapping.
	if fk := row.Get(FieldForeignKey); fk != "" {
		m, err := e.store.Mappings.Find(ctx, e.job.Connector, mapping.PersonForeignKey, fk)
		switch {
		case err == nil:
			u, err := e.store.Users.GetByID(ctx, m.ContextID)
			if err == nil {
				return u, nil
			}
			if !errors.Is(err, user.ErrNotFound) {
				return nil, err
			}
			e.job.Warning("mapping for foreign key {key} points at missing user {id}", map[string]any{
				"key": fk,
				"id":  m.ContextID.String(),
			})
		case !errors.Is(err, mapping.ErrNotFound):
			return nil, err
		}
	}

	// 2. Natural key.
	if sn := row.Get(FieldStudentNumber); sn != "" {
		u, err := e.lookupUserByStudentNumber(ctx, sn)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, user.ErrNotFound) {
			return nil, err
		}
	}

	// 3. Username.
	if username := row.Get(FieldUsername); username != "" {
		u, err := e.lookupUserByUsername(ctx, username)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, user.ErrNotFound) {
			return nil, err
		}
	}

	// 4. Email contact point, then school-domain local part as username.
	if email := row.Get(FieldEmail); email != "" {
		point, err := e.store.Emails.GetByAddress(ctx, email)
		switch {
		case err == nil:
			u, err := e.store.Users.GetByID(ctx, point.UserID)
			if err == nil {
				return u, nil
			}
			if !errors.Is(err, user.ErrNotFound) {
				return nil, err
			}
		case !errors.Is(err, emailaddress.ErrNotFound):
			return nil, err
		}

		if local, domain := emailaddress.Split(email); e.emailDomain != "" && domain == e.emailDomain {
			u, err := e.lookupUserByUsername(ctx, local)
			if err == nil {
				return u, nil
			}
			if !errors.Is(err, user.ErrNotFound) {
				return nil, err
			}
		}
	}

	// 5. Full name, only when the job opts in: names are not unique.
	if e.job.Config.MatchFullNames {
		first, last := row.Get(FieldFirstName), row.Get(FieldLastName)
		if first != "" && last != "" {
			u, err := e.store.Users.GetByFullName(ctx, first, last)
			if err == nil {
				return u, nil
			}
			if !errors.Is(err, user.ErrNotFound) {
				return nil, err
			}
		}
	}

	// 6. Connector hook.
	if hook := e.preset.Hooks.OnUserNotFound; hook != nil {
		return hook(ctx, e.store, row)
	}
	return nil, nil
}

// sectionMappingIdentifier scopes a section's external identifier to the
// master term, so the same source id can recur across school years.
func sectionMappingIdentifier(master *term.Term, external string) string {
	return master.Handle + ":" + external
}

// resolveSection locates an existing section by master-term-scoped
// external identifier, then by code. Returns (nil, nil) when neither
// matched.
func (e *Engine) resolveSection(ctx context.Context, row rowmap.Row, master *term.Term) (*section.Section, error) {
	if external := row.Get(FieldSectionExternal); external != "" {
		if s, ok := e.scratch.sectionsByExternal[external]; ok {
			return s, nil
		}
		m, err := e.store.Mappings.Find(ctx, e.job.Connector, mapping.SectionForeignKey, sectionMappingIdentifier(master, external))
		switch {
		case err == nil:
			s, err := e.store.Sections.GetByID(ctx, m.ContextID)
			if err == nil {
				return s, nil
			}
			if !errors.Is(err, section.ErrNotFound) {
				return nil, err
			}
			e.job.Warning("mapping for section identifier {id} points at missing section", map[string]any{
				"id": external,
			})
		case !errors.Is(err, mapping.ErrNotFound):
			return nil, err
		}
	}

	if code := row.Get(FieldSectionCode); code != "" {
		s, err := e.lookupSectionByCode(ctx, code)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, section.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}
