package config

type WorkerKeyStruct struct {
	PersistProctoringQueue    string
	PersistNotificationsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistProctoringQueue:    "persist_proctoring_queue",
	PersistNotificationsQueue: "persist_notifications_queue",
}
