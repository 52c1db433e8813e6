package domain

// RabbitMQ 队列名称
const (
	DistortionQueue = "distortion_queue"
	MailQueue       = "email_queue"
)

const MailTypeDistortionFinished = "distortion_finished"
