// Command allocate is the thin CLI boundary around the allocation
// engine (spec.md §6): it reads students, a mentor pool, and an
// optional history snapshot from CSV files, drives one batch through
// internal/batch, and writes assignments, trace, and summary as JSON.
// It is an external collaborator, not part of the core: the core never
// imports this package.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rezahh107/matrix2/internal/auditsign"
	"github.com/rezahh107/matrix2/internal/batch"
	"github.com/rezahh107/matrix2/internal/dedupe"
	"github.com/rezahh107/matrix2/internal/errs"
	"github.com/rezahh107/matrix2/internal/mentor"
	"github.com/rezahh107/matrix2/internal/policy"
	"github.com/rezahh107/matrix2/internal/progressfeed"
	"github.com/rezahh107/matrix2/internal/student"
)

const (
	exitSuccess       = 0
	exitPolicyInvalid = 2
	exitInputInvalid  = 3
	exitCancelled     = 4
	exitInternal      = 5
)

// centerManagerFlag collects repeated "-center-manager MENTOR_ID=V1,V2"
// flags into a mentor.Restriction map, keyed by mentor ID, narrowing
// the "center" eligibility field for RESTRICTED_* mentors.
type centerManagerFlag struct {
	restrictions map[string]mentor.Restriction
}

func (f *centerManagerFlag) String() string { return "" }

func (f *centerManagerFlag) Set(value string) error {
	k, v, ok := strings.Cut(value, "=")
	if !ok || k == "" || v == "" {
		return fmt.Errorf("center-manager must be MENTOR_ID=V1,V2: got %q", value)
	}
	values := make([]int, 0)
	for _, raw := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("center-manager value %q is not an integer: %w", raw, err)
		}
		values = append(values, n)
	}
	if f.restrictions == nil {
		f.restrictions = make(map[string]mentor.Restriction)
	}
	r := f.restrictions[k]
	if r == nil {
		r = mentor.Restriction{}
	}
	r["center"] = values
	f.restrictions[k] = r
	return nil
}

// output is the JSON document written to -output.
type output struct {
	Records []batch.Record `json:"records"`
	Summary batch.Summary  `json:"summary"`
	Receipt string         `json:"receipt,omitempty"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("allocate", flag.ContinueOnError)
	var (
		studentsPath   = fs.String("students", "", "path to students CSV")
		poolPath       = fs.String("pool", "", "path to mentor pool CSV")
		historyPath    = fs.String("history", "", "path to history snapshot CSV (optional)")
		policyPath     = fs.String("policy", "", "path to policy file (JSON or YAML)")
		outputPath     = fs.String("output", "", "path to write the run's output JSON")
		secret         = fs.String("receipt-secret", "", "HMAC secret for signing an audit receipt (optional)")
		progressAddr   = fs.String("progress-addr", "", "address to serve a WebSocket progress feed on (optional)")
		progressSecret = fs.String("progress-secret", "", "HMAC secret gating the progress feed (required with -progress-addr)")
	)
	var centerManagers centerManagerFlag
	fs.Var(&centerManagers, "center-manager", "MENTOR_ID=V1,V2 restriction override, repeatable")

	if err := fs.Parse(args); err != nil {
		return exitInputInvalid
	}
	if *studentsPath == "" || *poolPath == "" || *policyPath == "" || *outputPath == "" {
		fmt.Fprintln(os.Stderr, "allocate: -students, -pool, -policy and -output are required")
		return exitInputInvalid
	}

	id := runID()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Str("run_id", id).Logger()

	p, err := policy.Load(*policyPath)
	if err != nil {
		logger.Error().Err(err).Msg("policy load failed")
		return exitPolicyInvalid
	}

	mentors, err := loadMentorPool(*poolPath, centerManagers.restrictions)
	if err != nil {
		logger.Error().Err(err).Msg("mentor pool load failed")
		return exitInputInvalid
	}

	validStudents, buildFailures, err := loadStudents(*studentsPath, p.JoinKeys)
	if err != nil {
		logger.Error().Err(err).Msg("student input load failed")
		return exitInputInvalid
	}

	var snapshot dedupe.Snapshot
	if *historyPath != "" {
		snapshot, err = loadHistorySnapshot(*historyPath)
		if err != nil {
			logger.Error().Err(err).Msg("history snapshot load failed")
			return exitInputInvalid
		}
	} else {
		snapshot = dedupe.Snapshot{}
	}

	pool := mentor.NewPool(mentors)
	driver := batch.NewDriver(p, pool, snapshot, logger)

	var cancelled atomic.Bool
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		cancelled.Store(true)
	}()

	reporter := batch.ProgressReporter(func(percent int, message string) {
		logger.Info().Int("percent", percent).Str("message", message).Msg("progress")
	})
	if *progressAddr != "" {
		hub := progressfeed.NewHub(id, logger)
		go hub.Run()
		go serveProgressFeed(*progressAddr, *progressSecret, hub, logger)
		baseReporter := reporter
		hubReport := hub.Reporter()
		reporter = func(percent int, message string) {
			baseReporter(percent, message)
			hubReport(percent, message)
		}
	}

	records, summary, runErr := driver.Run(validStudents, reporter, cancelled.Load)

	records = append(records, buildFailureRecords(buildFailures)...)
	sort.Slice(records, func(i, j int) bool { return records[i].RowIndex < records[j].RowIndex })
	summary.TotalStudents += len(buildFailures)
	summary.FailedCount += len(buildFailures)

	doc := output{Records: records, Summary: summary}
	if *secret != "" {
		signer := auditsign.NewSigner(*secret)
		receipt, signErr := signer.Sign(id, summary, time.Now())
		if signErr != nil {
			logger.Error().Err(signErr).Msg("audit receipt signing failed")
			return exitInternal
		}
		doc.Receipt = receipt
	}

	if writeErr := writeOutput(*outputPath, doc); writeErr != nil {
		logger.Error().Err(writeErr).Msg("writing output failed")
		return exitInternal
	}

	if runErr != nil {
		if errs.IsCode(runErr, errs.CodeCancelled) {
			logger.Warn().Msg("batch cancelled")
			return exitCancelled
		}
		logger.Error().Err(runErr).Msg("batch aborted")
		return exitInternal
	}

	return exitSuccess
}

func runID() string {
	return uuid.NewString()
}

// serveProgressFeed runs the WebSocket progress endpoint for the
// lifetime of the batch. It is best-effort: a subscriber that never
// connects, or a server that fails to bind, does not affect the
// allocation outcome.
func serveProgressFeed(addr, secretKey string, hub *progressfeed.Hub, logger zerolog.Logger) {
	auth := progressfeed.NewJWTAuth(secretKey)
	handler := progressfeed.NewHandler(hub, auth, logger)
	logger.Info().Str("address", addr).Msg("progress feed listening")
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Error().Err(err).Msg("progress feed server stopped")
	}
}

func buildFailureRecords(failures []rowBuildFailure) []batch.Record {
	out := make([]batch.Record, 0, len(failures))
	for _, f := range failures {
		ae, _ := f.err.(*errs.AllocationError)
		outcome := batch.Outcome{Status: batch.StatusFailed}
		if ae != nil {
			outcome.ErrorKind = string(ae.Code)
			outcome.DetailedReason = ae.Message
		}
		out = append(out, batch.Record{
			RowIndex:  f.rowIndex,
			StudentID: f.studentID,
			Trace:     batch.TraceRecord{RowIndex: f.rowIndex, StudentID: f.studentID},
			Outcome:   outcome,
		})
	}
	return out
}

type rowBuildFailure struct {
	rowIndex  int
	studentID string
	err       error
}

func loadStudents(path string, joinKeys []string) ([]student.Student, []rowBuildFailure, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, nil, err
	}
	colIndex := headerIndex(header)

	students := make([]student.Student, 0, len(rows))
	var failures []rowBuildFailure
	for i, row := range rows {
		raw := student.RawRow{
			StudentID:     field(row, colIndex, "student_id"),
			NationalCode:  field(row, colIndex, "national_code"),
			SchoolCode:    field(row, colIndex, "school_code"),
			JoinKeyValues: make(map[string]string, len(joinKeys)),
		}
		for _, key := range joinKeys {
			raw.JoinKeyValues[key] = field(row, colIndex, key)
		}
		s, buildErr := student.FromRawRow(i, raw, joinKeys)
		if buildErr != nil {
			failures = append(failures, rowBuildFailure{rowIndex: i, studentID: raw.StudentID, err: buildErr})
			continue
		}
		students = append(students, s)
	}
	return students, failures, nil
}

var mentorEligibilityFields = []string{"type", "group", "gender", "graduation_status", "center", "finance"}

func loadMentorPool(path string, restrictions map[string]mentor.Restriction) ([]mentor.Mentor, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	colIndex := headerIndex(header)

	rawRows := make([]mentor.RawRow, 0, len(rows))
	for _, row := range rows {
		capacity, _ := strconv.Atoi(field(row, colIndex, "capacity"))
		allocations, _ := strconv.Atoi(field(row, colIndex, "allocations_new"))

		eligibility := make(map[string][]int, len(mentorEligibilityFields))
		for _, name := range mentorEligibilityFields {
			eligibility[name] = parseIntList(field(row, colIndex, name))
		}

		var boundSchools []string
		if raw := field(row, colIndex, "bound_schools"); raw != "" {
			boundSchools = strings.Split(raw, "|")
		}

		rawRows = append(rawRows, mentor.RawRow{
			MentorID:     field(row, colIndex, "mentor_id"),
			Capacity:     capacity,
			Allocations:  allocations,
			MentorStatus: field(row, colIndex, "mentor_status"),
			Eligibility:  eligibility,
			BoundSchools: boundSchools,
		})
	}
	return mentor.BuildPool(rawRows, restrictions), nil
}

func loadHistorySnapshot(path string) (dedupe.Snapshot, error) {
	rows, header, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	colIndex := headerIndex(header)

	snapshot := make(dedupe.Snapshot, len(rows))
	for _, row := range rows {
		code := field(row, colIndex, "national_code_normalized")
		if code == "" {
			continue
		}
		snapshot[code] = dedupe.Record{
			MentorID:         field(row, colIndex, "mentor_id"),
			CenterCode:       field(row, colIndex, "center_code"),
			LastAllocationAt: field(row, colIndex, "last_allocation_date"),
		}
	}
	return snapshot, nil
}

func readCSV(path string) (rows [][]string, header []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("%s: empty file", path)
	}
	return all[1:], all[0], nil
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	return idx
}

func field(row []string, colIndex map[string]int, name string) string {
	i, ok := colIndex[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseIntList(raw string) []int {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, "|")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func writeOutput(path string, doc output) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
