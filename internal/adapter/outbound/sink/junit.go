package sink

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/evalgate/evalgate/internal/domain/eval"
)

// JUnit renders a run as a JUnit XML test suite: one <testcase> per
// test_id, failed when any of the test's scores is false/zero or a
// generation_error score is present.
type JUnit struct {
	mu  sync.Mutex
	w   io.Writer
	run *eval.EvalResult
}

// NewJUnit creates a JUnit XML sink writing to w.
func NewJUnit(w io.Writer) *JUnit {
	return &JUnit{w: w}
}

// Emit is a no-op: the report is built from the run at Flush.
func (j *JUnit) Emit(eval.Score) error { return nil }

// EmitRun records the run to report on.
func (j *JUnit) EmitRun(run *eval.EvalResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.run = run
	return nil
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Body    string `xml:",chardata"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
}

type junitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Timestamp string          `xml:"timestamp,attr"`
	TestCases []junitTestCase `xml:"testcase"`
}

// Flush writes the XML document.
func (j *JUnit) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	suite := junitTestSuite{Name: "evalgate"}
	if j.run != nil {
		suite.Name = j.run.EvalID
		suite.Timestamp = j.run.CreatedAt.UTC().Format(time.RFC3339)
		suite.TestCases = j.testCases()
	}
	suite.Tests = len(suite.TestCases)
	for _, tc := range suite.TestCases {
		if tc.Failure != nil {
			suite.Failures++
		}
	}

	if _, err := io.WriteString(j.w, xml.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	enc := xml.NewEncoder(j.w)
	enc.Indent("", "  ")
	if err := enc.Encode(suite); err != nil {
		return fmt.Errorf("encode suite: %w", err)
	}
	if _, err := io.WriteString(j.w, "\n"); err != nil {
		return fmt.Errorf("write trailer: %w", err)
	}
	return nil
}

// testCases groups the run's scores by test id. Caller holds the lock.
func (j *JUnit) testCases() []junitTestCase {
	grouped := make(map[string][]eval.Score)
	for _, score := range j.run.Scores {
		id := testID(score)
		grouped[id] = append(grouped[id], score)
	}

	ids := make([]string, 0, len(grouped))
	for id := range grouped {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	cases := make([]junitTestCase, 0, len(ids))
	for _, id := range ids {
		tc := junitTestCase{Name: id, ClassName: j.run.EvalID}
		var reasons []string
		for _, score := range grouped[id] {
			if score.Name == eval.GenerationErrorScoreName {
				reasons = append(reasons, fmt.Sprintf("%s: %s", score.Name, score.Comment))
				continue
			}
			if !score.Value.Passed() {
				reason := fmt.Sprintf("%s=%s", score.Name, score.Value.String())
				if score.Comment != "" {
					reason += " (" + score.Comment + ")"
				}
				reasons = append(reasons, reason)
			}
		}
		if len(reasons) > 0 {
			tc.Failure = &junitFailure{
				Message: reasons[0],
				Body:    strings.Join(reasons, "\n"),
			}
		}
		cases = append(cases, tc)
	}
	return cases
}

// testID prefers the test_id metadata key, then dataset_item_id.
func testID(score eval.Score) string {
	if id, ok := score.Metadata[eval.MetaTestID].(string); ok && id != "" {
		return id
	}
	return score.ItemID()
}
