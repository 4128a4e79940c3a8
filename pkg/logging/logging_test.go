package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWithPhase(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	phaseLog := WithPhase("row_index")
	phaseLog.Info().Msg("working")
	if !strings.Contains(buf.String(), `"phase":"row_index"`) {
		t.Errorf("output %q missing phase field", buf.String())
	}
}

func TestCompletionEventFields(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	PhaseComplete(log, "transpose", 2*time.Second).
		Int("groups_count", 3).
		CountUint64("rows_count", 1500).
		Bytes("bytes_scanned", 4096).
		Throughput(4096).
		Log("done")

	out := buf.String()
	for _, want := range []string{
		`"event":"phase_completed"`,
		`"phase":"transpose"`,
		`"duration_ms":2000`,
		`"groups_count":3`,
		`"rows_count":1500`,
		`"bytes_scanned":4096`,
		`"throughput_bps":2048`,
		`"done"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestChunkCompleteDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.InfoLevel)

	ChunkComplete(log, "transpose", time.Second).LogDebug("quiet")
	if buf.Len() != 0 {
		t.Errorf("debug event emitted at info level: %q", buf.String())
	}

	prev := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	defer zerolog.SetGlobalLevel(prev)

	log = zerolog.New(&buf).Level(zerolog.DebugLevel)
	ChunkComplete(log, "transpose", time.Second).LogDebug("loud")
	if !strings.Contains(buf.String(), `"event":"chunk_completed"`) {
		t.Errorf("output %q missing chunk event", buf.String())
	}
}
