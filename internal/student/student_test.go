package student

import (
	"bytes"
	"testing"

	"github.com/rezahh107/matrix2/internal/normalize"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestStudent_StringRedactsNationalCode(t *testing.T) {
	s := Student{RowIndex: 0, StudentID: "S1", NationalCodeNormalized: "0012345678"}
	out := s.String()
	assert.NotContains(t, out, "0012345678")
	assert.Contains(t, out, normalize.NationalCodeHash("0012345678"))
}

func TestStudent_MarshalZerologObjectRedactsNationalCode(t *testing.T) {
	s := Student{RowIndex: 2, StudentID: "S2", NationalCodeNormalized: "0099999999"}

	var buf bytes.Buffer
	zerolog.New(&buf).Info().EmbedObject(s).Msg("test")

	logged := buf.String()
	assert.NotContains(t, logged, "0099999999")
	assert.Contains(t, logged, normalize.NationalCodeHash("0099999999"))
	assert.Contains(t, logged, `"student_id":"S2"`)
}
