package contracts

// Exchanges
const (
	ExchangeJobTopic       = "job_topic"
	ExchangeLocationFanout = "location_fanout"
)

// Queues
const (
	QueueJobStatus       = "job_status"
	QueueJobEscalations  = "job_escalations"
	QueueNotifications   = "notification_requests"
	QueueLocationUpdates = "location_updates"
)

// Routing patterns
const (
	RouteJobNew           = "job.new"
	RouteJobStatusPrefix  = "job.status."      // {status}
	RouteEscalationPrefix = "job.escalation."  // {operator_id}
	RouteNotifyPrefix     = "notify.customer." // {customer_id}
)

// Room keys for the realtime hub.
const (
	RoomAdmin     = "admin"
	RoomJobPrefix = "job:"
)

// JobRoom returns the room key for one job's broadcast group.
func JobRoom(jobID string) string {
	return RoomJobPrefix + jobID
}
