package sync

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusworks/campus-sdk/modules/connectors/domain/job"
	"github.com/campusworks/campus-sdk/modules/connectors/domain/mapping"
	"github.com/campusworks/campus-sdk/modules/people/domain/aggregates/user"
	"github.com/campusworks/campus-sdk/modules/people/domain/entities/emailaddress"
	"github.com/campusworks/campus-sdk/modules/schooling/domain/entities/section"
)

func seedPerson(store *memStore, firstName, lastName, username, studentNumber string) *user.User {
	u := user.NewStudent()
	u.Phantom = false
	u.FirstName = firstName
	u.LastName = lastName
	u.Username = username
	u.StudentNumber = studentNumber
	store.users.users = append(store.users.users, u)
	return u
}

func TestResolvePersonPriority(t *testing.T) {
	ctx := context.Background()

	t.Run("foreign-key mapping beats the natural key", func(t *testing.T) {
		store := newMemStore()
		mapped := seedPerson(store, "Mary", "Smith", "msmith", "4211")
		decoy := seedPerson(store, "Other", "Person", "operson", "9999")
		require.NoError(t, store.mappings.Create(ctx,
			mapping.New("spreadsheet", mapping.PersonForeignKey, "FK-1", mapping.ContextUser, mapped.ID)))

		e := newTestEngine(store, job.Config{})
		u, err := e.resolvePerson(ctx, testRow(map[string]string{
			FieldForeignKey:    "FK-1",
			FieldStudentNumber: decoy.StudentNumber,
		}))
		require.NoError(t, err)
		assert.Equal(t, mapped.ID, u.ID)
	})

	t.Run("student number beats username", func(t *testing.T) {
		store := newMemStore()
		byNumber := seedPerson(store, "Mary", "Smith", "msmith", "4211")
		byName := seedPerson(store, "Other", "Person", "operson", "")

		e := newTestEngine(store, job.Config{})
		u, err := e.resolvePerson(ctx, testRow(map[string]string{
			FieldStudentNumber: byNumber.StudentNumber,
			FieldUsername:      byName.Username,
		}))
		require.NoError(t, err)
		assert.Equal(t, byNumber.ID, u.ID)
	})

	t.Run("username beats email contact point", func(t *testing.T) {
		store := newMemStore()
		byName := seedPerson(store, "Mary", "Smith", "msmith", "")
		byEmail := seedPerson(store, "Other", "Person", "operson", "")
		point := emailaddress.New("shared@family.test", "Imported Email")
		point.UserID = byEmail.ID
		point.Primary = true
		point.Phantom = false
		store.emails.emails = append(store.emails.emails, point)

		e := newTestEngine(store, job.Config{})
		u, err := e.resolvePerson(ctx, testRow(map[string]string{
			FieldUsername: byName.Username,
			FieldEmail:    point.Address,
		}))
		require.NoError(t, err)
		assert.Equal(t, byName.ID, u.ID)
	})

	t.Run("email contact point match", func(t *testing.T) {
		store := newMemStore()
		owner := seedPerson(store, "Mary", "Smith", "msmith", "")
		point := emailaddress.New("mary@family.test", "Imported Email")
		point.UserID = owner.ID
		point.Primary = true
		point.Phantom = false
		store.emails.emails = append(store.emails.emails, point)

		e := newTestEngine(store, job.Config{})
		u, err := e.resolvePerson(ctx, testRow(map[string]string{FieldEmail: "MARY@family.test"}))
		require.NoError(t, err)
		assert.Equal(t, owner.ID, u.ID)
	})

	t.Run("school-domain local part falls back to username", func(t *testing.T) {
		store := newMemStore()
		owner := seedPerson(store, "Mary", "Smith", "msmith", "")

		e := newTestEngine(store, job.Config{}, WithEmailDomain("school.test"))
		u, err := e.resolvePerson(ctx, testRow(map[string]string{FieldEmail: "msmith@school.test"}))
		require.NoError(t, err)
		assert.Equal(t, owner.ID, u.ID)

		// Outside the configured domain the local part proves nothing.
		u, err = e.resolvePerson(ctx, testRow(map[string]string{FieldEmail: "msmith@elsewhere.test"}))
		require.NoError(t, err)
		assert.Nil(t, u)
	})

	t.Run("full name only when the job opts in", func(t *testing.T) {
		store := newMemStore()
		owner := seedPerson(store, "Mary", "Smith", "msmith", "")

		row := testRow(map[string]string{FieldFirstName: "Mary", FieldLastName: "Smith"})

		e := newTestEngine(store, job.Config{})
		u, err := e.resolvePerson(ctx, row)
		require.NoError(t, err)
		assert.Nil(t, u)

		e = newTestEngine(store, job.Config{MatchFullNames: true})
		u, err = e.resolvePerson(ctx, row)
		require.NoError(t, err)
		assert.Equal(t, owner.ID, u.ID)
	})

	t.Run("ambiguous full name matches nobody", func(t *testing.T) {
		store := newMemStore()
		seedPerson(store, "Mary", "Smith", "msmith", "")
		seedPerson(store, "Mary", "Smith", "msmith2", "")

		e := newTestEngine(store, job.Config{MatchFullNames: true})
		u, err := e.resolvePerson(ctx, testRow(map[string]string{FieldFirstName: "Mary", FieldLastName: "Smith"}))
		require.NoError(t, err)
		assert.Nil(t, u)
	})

	t.Run("orphaned mapping warns and keeps looking", func(t *testing.T) {
		store := newMemStore()
		owner := seedPerson(store, "Mary", "Smith", "msmith", "4211")
		require.NoError(t, store.mappings.Create(ctx,
			mapping.New("spreadsheet", mapping.PersonForeignKey, "FK-1", mapping.ContextUser, uuid.New())))

		e := newTestEngine(store, job.Config{})
		u, err := e.resolvePerson(ctx, testRow(map[string]string{
			FieldForeignKey:    "FK-1",
			FieldStudentNumber: "4211",
		}))
		require.NoError(t, err)
		assert.Equal(t, owner.ID, u.ID)

		transcript := e.Job().Transcript()
		require.NotEmpty(t, transcript)
		assert.Contains(t, transcript[0].Message, "points at missing user")
	})

	t.Run("nothing matches", func(t *testing.T) {
		e := newTestEngine(newMemStore(), job.Config{})
		u, err := e.resolvePerson(ctx, testRow(map[string]string{FieldStudentNumber: "4211"}))
		require.NoError(t, err)
		assert.Nil(t, u)
	})
}

func TestResolveSection(t *testing.T) {
	ctx := context.Background()

	t.Run("external identifier via mapping", func(t *testing.T) {
		store := newMemStore()
		master := seedTerms(store)
		s := section.New()
		s.Phantom = false
		s.Title = "Algebra I"
		require.NoError(t, store.sections.Save(ctx, s))
		require.NoError(t, store.mappings.Create(ctx,
			mapping.New("spreadsheet", mapping.SectionForeignKey, sectionMappingIdentifier(master, "1001"), mapping.ContextSection, s.ID)))

		e := newTestEngine(store, job.Config{})
		found, err := e.resolveSection(ctx, testRow(map[string]string{FieldSectionExternal: "1001"}), master)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, s.ID, found.ID)
	})

	t.Run("mapping identifiers are scoped to the master term", func(t *testing.T) {
		store := newMemStore()
		master := seedTerms(store)
		s := section.New()
		s.Phantom = false
		s.Title = "Algebra I"
		require.NoError(t, store.sections.Save(ctx, s))
		require.NoError(t, store.mappings.Create(ctx,
			mapping.New("spreadsheet", mapping.SectionForeignKey, "2025-2026:1001", mapping.ContextSection, s.ID)))

		e := newTestEngine(store, job.Config{})
		found, err := e.resolveSection(ctx, testRow(map[string]string{FieldSectionExternal: "1001"}), master)
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("code fallback", func(t *testing.T) {
		store := newMemStore()
		master := seedTerms(store)
		s := section.New()
		s.Phantom = false
		s.Code = "MATH-101-1"
		s.Title = "Algebra I"
		require.NoError(t, store.sections.Save(ctx, s))

		e := newTestEngine(store, job.Config{})
		found, err := e.resolveSection(ctx, testRow(map[string]string{
			FieldSectionExternal: "1001",
			FieldSectionCode:     "MATH-101-1",
		}), master)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, s.ID, found.ID)
	})

	t.Run("orphaned section mapping warns and falls through to code", func(t *testing.T) {
		store := newMemStore()
		master := seedTerms(store)
		s := section.New()
		s.Phantom = false
		s.Code = "MATH-101-1"
		s.Title = "Algebra I"
		require.NoError(t, store.sections.Save(ctx, s))
		require.NoError(t, store.mappings.Create(ctx,
			mapping.New("spreadsheet", mapping.SectionForeignKey, sectionMappingIdentifier(master, "1001"), mapping.ContextSection, uuid.New())))

		e := newTestEngine(store, job.Config{})
		found, err := e.resolveSection(ctx, testRow(map[string]string{
			FieldSectionExternal: "1001",
			FieldSectionCode:     "MATH-101-1",
		}), master)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, s.ID, found.ID)

		transcript := e.Job().Transcript()
		require.NotEmpty(t, transcript)
		assert.Contains(t, transcript[0].Message, "points at missing section")
	})
}
