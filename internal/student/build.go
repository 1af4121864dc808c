package student

import (
	"github.com/rezahh107/matrix2/internal/errs"
	"github.com/rezahh107/matrix2/internal/normalize"
)

// RawRow is the un-normalized view of one input row, as the boundary
// contract in spec.md §6 describes it: student_id, an optional
// national code, a delimiter-joined school-code cell, and the raw text
// of every join-key column the policy declares.
type RawRow struct {
	StudentID     string
	NationalCode  string
	SchoolCode    string
	JoinKeyValues map[string]string // keyed by policy join-key name
}

// FromRawRow coerces a RawRow into a Student: digit-folds and parses
// every declared join key to an integer (invariant I2), and normalizes
// the national code. A join key that fails to parse yields
// errs.JoinKeyDataMissing naming the offending column and row; it does
// not panic and does not partially mutate shared state, since Student
// values are owned solely by the caller until returned.
func FromRawRow(rowIndex int, row RawRow, joinKeyNames []string) (Student, error) {
	keys := make(map[string]int, len(joinKeyNames))
	for _, name := range joinKeyNames {
		raw, present := row.JoinKeyValues[name]
		if !present {
			return Student{}, errs.JoinKeyDataMissing(rowIndex, row.StudentID, name, nil)
		}
		v, ok := normalize.Int(raw)
		if !ok {
			return Student{}, errs.JoinKeyDataMissing(rowIndex, row.StudentID, name, nil)
		}
		keys[name] = v
	}

	var nationalCode string
	if row.NationalCode != "" {
		nationalCode = normalize.NationalCode(row.NationalCode)
	}

	return Student{
		RowIndex:               rowIndex,
		StudentID:              row.StudentID,
		NationalCodeNormalized: nationalCode,
		JoinKeys:               keys,
		SchoolCodeRaw:          row.SchoolCode,
	}, nil
}
