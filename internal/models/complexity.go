package models

// ComplexityBreakdown itemizes every contribution to a complexity score. The
// field values always sum to the score they accompany.
type ComplexityBreakdown struct {
	Size              int `json:"size"`
	LargeFiles        int `json:"large_files"`
	Environments      int `json:"environments"`
	Secrets           int `json:"secrets"`
	Packages          int `json:"packages"`
	SelfHostedRunners int `json:"self_hosted_runners"`
	Variables         int `json:"variables"`
	Discussions       int `json:"discussions"`
	Releases          int `json:"releases"`
	LFS               int `json:"lfs"`
	Submodules        int `json:"submodules"`
	InstalledApps     int `json:"installed_apps"`
	Projects          int `json:"projects"`
	AdvancedSecurity  int `json:"advanced_security"`
	Webhooks          int `json:"webhooks"`
	BranchProtections int `json:"branch_protections"`
	Rulesets          int `json:"rulesets"`
	Visibility        int `json:"visibility"`
	Codeowners        int `json:"codeowners"`
	Activity          int `json:"activity"`
}

// Total sums every component of the breakdown.
func (b *ComplexityBreakdown) Total() int {
	return b.Size + b.LargeFiles + b.Environments + b.Secrets + b.Packages +
		b.SelfHostedRunners + b.Variables + b.Discussions + b.Releases +
		b.LFS + b.Submodules + b.InstalledApps + b.Projects +
		b.AdvancedSecurity + b.Webhooks + b.BranchProtections + b.Rulesets +
		b.Visibility + b.Codeowners + b.Activity
}
