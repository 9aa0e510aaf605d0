package browserdriver

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Lemon9247/agentfox/internal/gateway/mcperr"
)

const (
	maxEvaluateResultBytes  = 1 << 20 // 1MB, per spec section 4's evaluate result cap
	defaultEvaluateTimeout  = 10 * time.Second
)

type evaluateParams struct {
	Function string `json:"function"`
	Ref      string `json:"ref"`
}

type evaluateResult struct {
	Value json.RawMessage `json:"value"`
}

// handleEvaluate evaluates an arrow-function expression in the page's
// main world, optionally scoped to an element reference passed as the
// function's sole argument. Oversized results are truncated rather
// than forwarded whole, per spec section 6's end-to-end scenario 6.
func (d *Driver) handleEvaluate(raw json.RawMessage) (any, error) {
	var p evaluateParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Function) == "" {
		return nil, target(mcperr.CodeInvalidParams, "function is required")
	}

	t, err := d.active()
	if err != nil {
		return nil, err
	}

	var res json.RawMessage
	evalErr := func() error {
		page := t.page.Timeout(defaultEvaluateTimeout)
		if p.Ref != "" {
			el, rerr := d.resolveRef(t, p.Ref)
			if rerr != nil {
				return rerr
			}
			value, eerr := el.Timeout(defaultEvaluateTimeout).Eval(p.Function, el.Object)
			if eerr != nil {
				return eerr
			}
			encoded, merr := json.Marshal(value.Value)
			if merr != nil {
				return merr
			}
			res = encoded
			return nil
		}
		value, eerr := page.Eval(p.Function)
		if eerr != nil {
			return eerr
		}
		encoded, merr := json.Marshal(value.Value)
		if merr != nil {
			return merr
		}
		res = encoded
		return nil
	}()

	if evalErr != nil {
		msg := evalErr.Error()
		if strings.Contains(msg, "is not a function") {
			return nil, target(mcperr.CodeEvaluateNotAFunc, msg)
		}
		if strings.Contains(strings.ToLower(msg), "timeout") {
			return nil, target(mcperr.CodeEvaluateTimeout, msg)
		}
		return nil, target(mcperr.CodeEvaluateThrew, msg)
	}

	if len(res) > maxEvaluateResultBytes {
		truncated, _ := json.Marshal(fmt.Sprintf(
			"[Result truncated: serialized size %d bytes exceeds 1MB limit]", len(res)))
		return evaluateResult{Value: truncated}, nil
	}
	return evaluateResult{Value: res}, nil
}
