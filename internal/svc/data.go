package svc

import (
	"os"

	"github.com/blockwell/agentd/internal/agenterr"
	"github.com/blockwell/agentd/pkg/dataservice"
)

// RunData implements the "dataservice" private sub-command. It owns
// a Root context over store and serves one request per DATA_PACKET read
// from the request socket, writing back the encoded Response.
func RunData(requestFile, logFile *os.File, store dataservice.Store) int {
	root := dataservice.RootContextInit(store)
	disp := dataservice.NewDispatcher(root)

	handle := func(req []byte) []byte {
		return disp.Handle(agenterr.ServiceData, req)
	}

	return runRequestResponseShell("dataservice", agenterr.ServiceData, requestFile, logFile, handle)
}
