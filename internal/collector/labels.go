package collector

const (
	job       = "job"
	container = "container"
)

func buildLabels(jobName, containerName string) map[string]string {
	return map[string]string{
		job:       jobName,
		container: containerName,
	}
}
