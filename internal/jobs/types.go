package jobs

const TaskDrainQueue = "sync:drain_queue"

type DrainQueuePayload struct {
	Category string `json:"category"`
}
