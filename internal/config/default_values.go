package config

const (
	DefaultBaseURL   = "https://api.anthropic.com/v1/"
	DefaultModel     = "claude-3-7-sonnet-20250219"
	DefaultTimeoutMS = 120000

	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000
	MinMaxTokens       = 100
	MaxMaxTokens       = 4096

	DefaultHistoryTokenLimit = 24000
	DefaultTemplate          = "General"

	DefaultChunkSize         = 1000
	DefaultChunkOverlap      = 200
	DefaultTopK              = 5
	DefaultContextTokenLimit = 6000
	DefaultHashDim           = 256
	DefaultEmbedBatchSize    = 64

	DefaultRepoMaxFileBytes = 200 * 1024
	DefaultRepoMaxFiles     = 400
	DefaultRepoWorkers      = 4

	DefaultDevOpsBaseURL    = "https://dev.azure.com"
	DefaultDevOpsAPIVersion = "7.1"
	DefaultWorkItemType     = "User Story"

	DefaultMailHost      = "outlook.office365.com"
	DefaultMailPort      = 993
	DefaultSenderFilter  = "tilena"
	DefaultTicketBaseURL = "https://tilena.fooddeliverybrands.com/front/ticket.form.php"

	DefaultTokenTTLMinutes = 480
	DefaultServerAddr      = ":8080"
)
