package backoffice

import "github.com/IsaacDSC/gquery/pkg/httpadapter"

func Routes(reader Reader, cache Cache) []httpadapter.HttpHandle {
	return []httpadapter.HttpHandle{
		GetHealthCheckHandler(),
		GetQueryHandle(reader),
		GetStatsHandle(cache),
		GetInvalidateHandle(cache),
		GetClearHandle(cache),
		GetLoginHandle(cache),
		GetLogoutHandle(cache),
	}
}
