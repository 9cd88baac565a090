package plan

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/joncooperworks/vouch/blockstore"
	"github.com/joncooperworks/vouch/crypto"
	"github.com/joncooperworks/vouch/crypto/ski"
)

const (
	opPublishKeys    = "publish_keys"
	opVouch          = "vouch"
	opLoadMasterKey  = "load_master_key"
	opPublishMessage = "publish_message"
	opReadMessage    = "read_message"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vouch_protocol_operations_total",
		Help: "Trust/publish operations completed successfully.",
	}, []string{"op"})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vouch_protocol_failures_total",
		Help: "Trust/publish operations that failed, by kind of failure.",
	}, []string{"op", "kind"})
)

func failureKind(err error) string {
	switch {
	case errors.Is(err, crypto.ErrDecryption):
		return "decryption"
	case errors.Is(err, crypto.ErrAuthentication):
		return "authentication"
	case errors.Is(err, crypto.ErrPrecondition):
		return "precondition"
	case errors.Is(err, ski.ErrKeyringNotFound):
		return "no_keyring"
	case errors.Is(err, blockstore.ErrNotFound):
		return "not_found"
	default:
		return "other"
	}
}
