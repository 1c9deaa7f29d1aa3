package config

type WorkerKeyStruct struct {
	PersistSecurityEventsQueue string
	PersistHeartbeatsQueue     string
}

var WorkerKey = &WorkerKeyStruct{
	PersistSecurityEventsQueue: "persist_security_events_queue",
	PersistHeartbeatsQueue:     "persist_heartbeats_queue",
}
