package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/campusworks/campus-sdk/modules/connectors/domain/job"
	"github.com/campusworks/campus-sdk/modules/connectors/infinitecampus"
	"github.com/campusworks/campus-sdk/modules/connectors/infrastructure/persistence"
	"github.com/campusworks/campus-sdk/modules/connectors/spreadsheet"
	"github.com/campusworks/campus-sdk/modules/connectors/sync"
	peoplepersistence "github.com/campusworks/campus-sdk/modules/people/infrastructure/persistence"
	schoolingpersistence "github.com/campusworks/campus-sdk/modules/schooling/infrastructure/persistence"
	"github.com/campusworks/campus-sdk/pkg/composables"
	"github.com/campusworks/campus-sdk/pkg/configuration"
	"github.com/campusworks/campus-sdk/pkg/eventbus"
)

type importOptions struct {
	preset  string
	overlay string

	students    string
	alumni      string
	staff       string
	sections    string
	enrollments string

	masterTerm        string
	enrollmentDivider string
	commit            bool

	capitalize      bool
	updateUsernames bool
	updatePasswords bool
	updateAbout     bool
	matchFullNames  bool
	autoAssignEmail bool
}

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import people, sections and enrollments from SIS spreadsheets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.preset, "preset", "spreadsheet", "Data source preset: spreadsheet or infinite-campus")
	cmd.Flags().StringVar(&opts.overlay, "overlay", "", "YAML preset overlay file")

	cmd.Flags().StringVar(&opts.students, "students", "", "Students spreadsheet (CSV or XLSX)")
	cmd.Flags().StringVar(&opts.alumni, "alumni", "", "Alumni spreadsheet")
	cmd.Flags().StringVar(&opts.staff, "staff", "", "Staff spreadsheet")
	cmd.Flags().StringVar(&opts.sections, "sections", "", "Sections spreadsheet")
	cmd.Flags().StringVar(&opts.enrollments, "enrollments", "", "Enrollments spreadsheet")

	cmd.Flags().StringVar(&opts.masterTerm, "master-term", "", "Master term handle, e.g. 2026-2027 (required for sections and enrollments)")
	cmd.Flags().StringVar(&opts.enrollmentDivider, "enrollment-divider", "", "Separator splitting stacked section references in one cell")
	cmd.Flags().BoolVar(&opts.commit, "commit", false, "Write changes to the database (default is a pretend run)")

	cmd.Flags().BoolVar(&opts.capitalize, "capitalize", false, "Normalize name capitalization on import")
	cmd.Flags().BoolVar(&opts.updateUsernames, "update-usernames", false, "Update usernames on existing users")
	cmd.Flags().BoolVar(&opts.updatePasswords, "update-passwords", false, "Update passwords on existing users")
	cmd.Flags().BoolVar(&opts.updateAbout, "update-about", false, "Update the about field on existing users")
	cmd.Flags().BoolVar(&opts.matchFullNames, "match-full-names", false, "Fall back to first+last name matching during resolution")
	cmd.Flags().BoolVar(&opts.autoAssignEmail, "auto-assign-email", false, "Assign a school-domain primary email when the row carries none")

	return cmd
}

func runImport(ctx context.Context, opts importOptions) error {
	preset, err := buildPreset(opts)
	if err != nil {
		return err
	}

	conf := configuration.Use()
	logger := conf.Logger()

	config := job.Config{
		AutoCapitalize:    opts.capitalize,
		UpdateUsernames:   opts.updateUsernames,
		UpdatePasswords:   opts.updatePasswords,
		UpdateAbout:       opts.updateAbout,
		MatchFullNames:    opts.matchFullNames,
		AutoAssignEmail:   opts.autoAssignEmail,
		MasterTerm:        opts.masterTerm,
		EnrollmentDivider: opts.enrollmentDivider,
	}
	j := job.New(preset.ID, config, logger.WithField("connector", preset.ID))

	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		return errors.Wrap(err, "connecting to database")
	}
	defer pool.Close()
	ctx = composables.WithPool(ctx, pool)

	store := newStore()
	engine := sync.NewEngine(preset, store, j,
		sync.WithPretend(!opts.commit),
		sync.WithEmailDomain(conf.School.UserEmailDomain),
		sync.WithEventBus(eventbus.NewEventPublisher(logger)),
	)

	sources, cleanup, err := openSources(opts)
	if err != nil {
		return err
	}
	defer cleanup()

	if !opts.commit {
		logger.Info("pretend run: no changes will be written")
		_, err = engine.Synchronize(ctx, sources)
	} else {
		err = composables.InTx(ctx, func(txCtx context.Context) error {
			_, syncErr := engine.Synchronize(txCtx, sources)
			return syncErr
		})
		if err != nil {
			// The rollback discarded the failed job row; keep the record.
			if saveErr := store.Jobs.Save(ctx, j); saveErr != nil {
				logger.WithError(saveErr).Warn("could not record failed job")
			}
		}
	}
	if err != nil {
		return err
	}

	return printResults(j)
}

func buildPreset(opts importOptions) (sync.Preset, error) {
	var preset sync.Preset
	switch opts.preset {
	case "", "spreadsheet":
		preset = sync.Base()
	case "infinite-campus":
		preset = infinitecampus.Preset()
	default:
		return sync.Preset{}, errors.Errorf("unknown preset %q", opts.preset)
	}
	if opts.overlay != "" {
		return preset.WithOverlayFile(opts.overlay)
	}
	return preset, nil
}

func newStore() *sync.Store {
	return &sync.Store{
		Users:        peoplepersistence.NewUserRepository(),
		Groups:       peoplepersistence.NewGroupRepository(),
		Emails:       peoplepersistence.NewEmailRepository(),
		Terms:        schoolingpersistence.NewTermRepository(),
		Courses:      schoolingpersistence.NewCourseRepository(),
		Departments:  schoolingpersistence.NewDepartmentRepository(),
		Sections:     schoolingpersistence.NewSectionRepository(),
		Participants: schoolingpersistence.NewParticipantRepository(),
		Schedules:    schoolingpersistence.NewScheduleRepository(),
		Locations:    schoolingpersistence.NewLocationRepository(),
		Mappings:     persistence.NewMappingRepository(),
		Jobs:         persistence.NewJobRepository(),
	}
}

func openSources(opts importOptions) (sync.Sources, func(), error) {
	var opened []spreadsheet.Source
	cleanup := func() {
		for _, src := range opened {
			_ = src.Close()
		}
	}
	open := func(path string) (sync.RowSource, error) {
		if path == "" {
			return nil, nil
		}
		src, err := spreadsheet.Open(path)
		if err != nil {
			return nil, err
		}
		opened = append(opened, src)
		return src, nil
	}

	var sources sync.Sources
	var err error
	if sources.Students, err = open(opts.students); err != nil {
		cleanup()
		return sync.Sources{}, nil, err
	}
	if sources.Alumni, err = open(opts.alumni); err != nil {
		cleanup()
		return sync.Sources{}, nil, err
	}
	if sources.Staff, err = open(opts.staff); err != nil {
		cleanup()
		return sync.Sources{}, nil, err
	}
	if sources.Sections, err = open(opts.sections); err != nil {
		cleanup()
		return sync.Sources{}, nil, err
	}
	if sources.Enrollments, err = open(opts.enrollments); err != nil {
		cleanup()
		return sync.Sources{}, nil, err
	}
	return sources, cleanup, nil
}

func printResults(j *job.Job) error {
	out, err := json.MarshalIndent(map[string]any{
		"job":     j.ID,
		"status":  j.Status,
		"results": j.Results,
	}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "rendering results")
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}
