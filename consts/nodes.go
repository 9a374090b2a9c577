package consts

// Crew graph node keys. Task keys take the zero-based task index.
const (
	CrewGraph = "crew"

	TaskLoadNode    = "task_%d_load"
	TaskAgentNode   = "task_%d_agent"
	TaskCollectNode = "task_%d_collect"
	FinishNode      = "finish"
)
