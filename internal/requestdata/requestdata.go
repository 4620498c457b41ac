package requestdata

import "context"

var requestDataKey = struct{}{}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	val := ctx.Value(requestDataKey)
	if rd, ok := val.(*RequestData); ok {
		return rd
	}
	return nil
}

// RequestData is the per-request identity extracted by the auth middleware.
// UserToken is the raw bearer token, forwarded to the directory and core
// service clients on the user's behalf.
type RequestData struct {
	UserID    string
	UserToken string
}
