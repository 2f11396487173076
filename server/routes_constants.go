package server

const (
	RouteIndex  = "/"
	RouteOpenUI = "/open"

	RouteAuthLogin    = "/auth/login"
	RouteAuthRegister = "/auth/register"

	RouteAppRegister = "/app/register"
	RouteAppList     = "/app/list"
	RouteAppToggle   = "/app/toggle"
	RouteAppDelete   = "/app/delete/{id}"
	RouteAppClear    = "/app/clear"

	RouteKeysList   = "/keys/list"
	RouteKeysAdd    = "/keys/add"
	RouteKeysUpdate = "/keys/update/{id}"
	RouteKeysDelete = "/keys/delete/{id}"

	RoutePresetsList   = "/presets/list"
	RoutePresetsAdd    = "/presets/add"
	RoutePresetsUpdate = "/presets/update/{id}"
	RoutePresetsDelete = "/presets/delete/{id}"
	RoutePresetsKeys   = "/presets/{id}/keys"

	RouteStoreCollection = "/store/{collection}"
	RouteStoreKey        = "/store/{collection}/{key}"

	RouteProxy = "/proxy"

	RouteGateway = "/openai/"

	RouteUsageList  = "/usage/list"
	RouteUsageClear = "/usage/clear"
)
