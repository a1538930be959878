package speechtotext

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-referrals/core/speechtotext"

var logger = otelslog.NewLogger(scopeName)
