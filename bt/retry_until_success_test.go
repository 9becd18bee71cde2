package bt_test

import (
	"strings"
	"testing"

	"github.com/arborcode/hsm"
	"github.com/arborcode/hsm/bt"
)

// retryFixture wires top -> s1 -> RetryUntilSuccess{s11}, grounded on
// original_source's lib/bt/test/retry_until_success.c (test_limited): s11
// posts FAILURE on its first run and SUCCESS on its second, proving the
// node re-enters its child on failure and reports up only once the child
// finally succeeds.
type retryFixture struct {
	trace strings.Builder
	queue []hsm.Event
	cnt   int

	s1, s11, node hsm.State
}

func newRetryFixture() (*retryFixture, *hsm.HSM) {
	m := &retryFixture{}
	r := bt.NewRegistry()

	m.s1 = hsm.State{Fn: m.s1Handler}
	m.s11 = hsm.State{Fn: m.s11Handler}

	h := hsm.New(hsm.State{Fn: m.topInit})

	nodes := r.AddRetryUntilSuccess(h, []*bt.RetryUntilSuccessNode{{
		Child:         m.s11,
		Superstate:    m.s1,
		AttemptsTotal: -1,
	}})
	m.node = nodes[0]

	r.AddCfg(h, func(e hsm.Event) { m.queue = append(m.queue, e) })
	return m, h
}

func (m *retryFixture) log(tok string) { m.trace.WriteString(tok) }

func (m *retryFixture) drain(h *hsm.HSM) {
	for len(m.queue) > 0 {
		e := m.queue[0]
		m.queue = m.queue[1:]
		h.Dispatch(e)
	}
}

func (m *retryFixture) topInit(h *hsm.HSM, e hsm.Event) hsm.Result {
	if e.ID == hsm.Init {
		return hsm.Tran(m.s1)
	}
	return hsm.Handled()
}

func (m *retryFixture) s1Handler(h *hsm.HSM, e hsm.Event) hsm.Result {
	switch e.ID {
	case hsm.Empty:
		return hsm.Super(hsm.State{Fn: hsm.Top})
	case hsm.Entry, hsm.Exit:
		return hsm.Handled()
	case hsm.Init:
		m.log("s1-INIT;")
		return hsm.Tran(m.node)
	case bt.Success:
		m.log("s1-BT_SUCCESS;")
		return hsm.Handled()
	case bt.Failure:
		m.log("s1-BT_FAILURE;")
		return hsm.Handled()
	default:
		return hsm.Super(hsm.State{Fn: hsm.Top})
	}
}

func (m *retryFixture) s11Handler(h *hsm.HSM, e hsm.Event) hsm.Result {
	switch e.ID {
	case hsm.Empty:
		return hsm.Super(m.node)
	case hsm.Entry:
		m.log("s11-ENTRY;")
		if m.cnt == 0 {
			m.queue = append(m.queue, hsm.NewEvent(bt.Failure, nil))
		} else {
			m.queue = append(m.queue, hsm.NewEvent(bt.Success, nil))
		}
		m.cnt++
		return hsm.Handled()
	case hsm.Exit:
		m.log("s11-EXIT;")
		return hsm.Handled()
	default:
		return hsm.Super(m.node)
	}
}

func TestRetryUntilSuccessRetriesThenReports(t *testing.T) {
	m, h := newRetryFixture()
	h.Init()
	m.drain(h)

	want := "s1-INIT;s11-ENTRY;s11-EXIT;s11-ENTRY;s1-BT_SUCCESS;"
	if got := m.trace.String(); got != want {
		t.Fatalf("trace = %q, want %q", got, want)
	}
	if !h.IsIn(m.s11) {
		t.Fatal("expected s11 to still be the active leaf after the node reports up")
	}
	if len(m.queue) != 0 {
		t.Fatalf("expected the queue to have drained, got %d left", len(m.queue))
	}
}
