package cards

import (
	"fmt"

	"github.com/marcus/notecards/internal/dataview"
)

// Outcome names what a query execution produced.
type Outcome int

const (
	// OutcomeData is a non-empty result to render as cards.
	OutcomeData Outcome = iota
	// OutcomeFailed is an unsuccessful execution.
	OutcomeFailed
	// OutcomeNoData is a successful execution with a nil value.
	OutcomeNoData
	// OutcomeEmpty is an empty list or table.
	OutcomeEmpty
)

func (o Outcome) String() string {
	switch o {
	case OutcomeData:
		return "data"
	case OutcomeFailed:
		return "failed"
	case OutcomeNoData:
		return "no-data"
	case OutcomeEmpty:
		return "empty"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Interpretation is the classified result of a query execution.
type Interpretation struct {
	Outcome Outcome
	Value   any    // unwrapped value for OutcomeData
	Message string // failure message for OutcomeFailed
}

// Interpret classifies res. An envelope whose value is itself a result is
// unwrapped exactly once.
func Interpret(res dataview.Result) Interpretation {
	if res.Successful {
		switch inner := res.Value.(type) {
		case dataview.Result:
			res = inner
		case *dataview.Result:
			if inner != nil {
				res = *inner
			}
		}
	}

	if !res.Successful {
		msg := "unknown error"
		if res.Value != nil {
			msg = fmt.Sprint(res.Value)
		}
		return Interpretation{Outcome: OutcomeFailed, Message: msg}
	}

	switch v := res.Value.(type) {
	case nil:
		return Interpretation{Outcome: OutcomeNoData}
	case *dataview.Table:
		if v == nil {
			return Interpretation{Outcome: OutcomeNoData}
		}
		if v.Len() == 0 {
			return Interpretation{Outcome: OutcomeEmpty}
		}
	case dataview.PageList:
		if len(v) == 0 {
			return Interpretation{Outcome: OutcomeEmpty}
		}
	case []any:
		if len(v) == 0 {
			return Interpretation{Outcome: OutcomeEmpty}
		}
	}
	return Interpretation{Outcome: OutcomeData, Value: res.Value}
}
