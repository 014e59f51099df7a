package retrieval

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/ragmesh/agent"
	"github.com/hupe1980/ragmesh/tool"
)

// SearchFirstPolicy returns a BeforeTool callback that rejects
// get_external_info for a subject unless internal_search ran for the same
// subject earlier in the current Post. The rejection reaches the model as
// the call's {"error": ...} result.
func SearchFirstPolicy() agent.Callback {
	return agent.NewFunctionCallback(agent.CallbackBeforeTool, func(_ context.Context, cc *agent.CallbackContext) error {
		if cc.Call == nil || cc.Call.Name != ExternalInfoName {
			return nil
		}
		var args ExternalInfoArgs
		if err := json.Unmarshal([]byte(cc.Call.Arguments), &args); err != nil {
			// argument validation reports this
			return nil
		}
		if Searched(cc.TurnState, args.PersonName) {
			return nil
		}
		return tool.NewToolError(ExternalInfoName,
			fmt.Sprintf("call %s for %s before fetching external information", InternalSearchName, args.PersonName),
			tool.CodePolicyViolation)
	})
}
