package config

import "time"

type TaskConfig interface {
	GetNatsURL() string
	GetTaskSubject() string
	GetTaskResultSubject() string
	GetTaskMaxPending() int
	GetTaskTimeout() time.Duration
}

type Tasks struct{}

var _ TaskConfig = Tasks{}

// GetNatsURL returns the NATS server URL. Empty disables task dispatch.
func (Tasks) GetNatsURL() string {
	return GetEnv("NATS_URL", "")
}

func (Tasks) GetTaskSubject() string {
	return GetEnv("TASK_SUBJECT", "mindcraft.tasks")
}

func (Tasks) GetTaskResultSubject() string {
	return GetEnv("TASK_RESULT_SUBJECT", "mindcraft.tasks.results")
}

func (Tasks) GetTaskMaxPending() int {
	return GetEnvInt("TASK_MAX_PENDING", 256)
}

func (Tasks) GetTaskTimeout() time.Duration {
	return GetEnvDuration("TASK_TIMEOUT", 30*time.Second)
}
