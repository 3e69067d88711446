package testutils

// Calendar response bodies.
const (
	BodyV2OK          = `{"isSuccess":true,"code":0,"message":"ok","result":{"dates":["2025-10-01"]}}`
	BodyV1Array       = `{"isSuccess":true,"code":0,"message":"ok","result":["2025-10-01","2025-10-04"]}`
	BodyMissingDates  = `{"isSuccess":true,"code":0,"message":"ok","result":{"days":["2025-10-01"]}}`
	BodyNoEnvelope    = `{"dates":["2025-10-01"]}`
	BodyServerError   = `{"isSuccess":false,"code":500,"message":"internal","result":null}`
	BodyNotJSON       = `<html><body>Bad Gateway</body></html>`
	BodyUnauthorized  = `{"isSuccess":false,"code":401,"message":"Invalid token","result":null}`
	BodyStringSuccess = `{"isSuccess":"true","code":0,"message":"ok","result":{"dates":[]}}`
)
