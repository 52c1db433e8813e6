package handler

type ContextKey string

var (
	SubCtxKey        ContextKey = "sub"
	DistortionRunCtx ContextKey = "distortionRun"
)
