package metrics

/*
Labels and so on for metrics used in papercd.
*/

const (
	LabelMethod  = "method"
	LabelRoute   = "route"
	LabelStage   = "stage"
	LabelSuccess = "success"
)
