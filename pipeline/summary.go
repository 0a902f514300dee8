package pipeline

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// String prints the run as a two column table: status, last count, failure and the run stats.
func (st State) String() string {
	t := table.NewWriter()
	t.SetTitle("Run summary")
	t.AppendRow(table.Row{"Run", st.RunID})
	t.AppendRow(table.Row{"Status", st.Status})
	t.AppendRow(table.Row{"People (last frame)", st.Count})
	if st.LastError != nil {
		t.AppendRow(table.Row{"Error", fmt.Sprintf("%s: %s", st.LastError.Kind, st.LastError.Message)})
		if st.LastError.Guidance != "" {
			t.AppendRow(table.Row{"Hint", st.LastError.Guidance})
		}
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"Frames read", st.Stats.FramesRead})
	t.AppendRow(table.Row{"Frames published", st.Stats.FramesPublished})
	t.AppendRow(table.Row{"Read failures", st.Stats.ReadFailures})
	t.AppendRow(table.Row{"Inference failures", st.Stats.InferenceFailures})
	t.AppendRow(table.Row{"Over budget iterations", st.Stats.Overruns})
	t.AppendRow(table.Row{"Mean inference", st.Stats.MeanInference.Round(time.Microsecond)})
	t.AppendRow(table.Row{"p95 inference", st.Stats.P95Inference.Round(time.Microsecond)})
	return t.Render()
}
