package pipeline

import "fmt"

// Stage names one step of a job.
type Stage string

const (
	StageSetup     Stage = "setup"
	StageXLSX      Stage = "xlsx"
	StageMD5       Stage = "md5"
	StageReconcile Stage = "reconcile"
	StageComplete  Stage = "complete"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageSetup, StageXLSX, StageMD5, StageReconcile, StageComplete}

// Next returns the stage that follows s. The second result is false after
// the last stage.
func Next(s Stage) (Stage, bool) {
	for i, st := range Stages {
		if st == s && i+1 < len(Stages) {
			return Stages[i+1], true
		}
	}
	return "", false
}

// ParseStage validates a stage name read from the queue.
func ParseStage(name string) (Stage, error) {
	for _, st := range Stages {
		if string(st) == name {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", name)
}
