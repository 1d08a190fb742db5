package orchestrator

// Document-store collection names.
const (
	CollectionJobs                     = "jobs"
	CollectionJobSuggestions           = "jobSuggestions"
	CollectionJobRefinements           = "jobRefinements"
	CollectionJobChannelRecommendations = "jobChannelRecommendations"
	CollectionJobAssets                = "jobAssets"
	CollectionWizardCopilotChats       = "wizardCopilotChats"
	CollectionVideos                   = "videos"
	CollectionCompanies                = "companies"
)
