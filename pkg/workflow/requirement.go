package workflow

// Requirement names a prerequisite of a DAG node, either by job name or by
// reference to an added Job.
type Requirement struct {
	name string
	job  *Job
}

// ByName refers to a prerequisite by its job name.
func ByName(name string) Requirement {
	return Requirement{name: name}
}

// ByJob refers to a prerequisite by Job; it resolves to the job's name.
func ByJob(job *Job) Requirement {
	return Requirement{job: job}
}

// Names builds name requirements from a list of job names.
func Names(names ...string) []Requirement {
	out := make([]Requirement, 0, len(names))
	for _, n := range names {
		out = append(out, ByName(n))
	}
	return out
}

// Jobs builds reference requirements from a list of jobs.
func Jobs(jobs ...*Job) []Requirement {
	out := make([]Requirement, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, ByJob(j))
	}
	return out
}

func (r Requirement) resolve() (string, error) {
	if r.job != nil {
		return r.job.Name(), nil
	}
	if r.name == "" {
		return "", &TypeMismatchError{Want: "job name or job", Got: "empty requirement"}
	}
	return r.name, nil
}

// resolveRequirements reduces reqs to an ordered, de-duplicated name list.
func resolveRequirements(reqs []Requirement) ([]string, error) {
	names := make([]string, 0, len(reqs))
	seen := make(map[string]struct{}, len(reqs))
	for _, r := range reqs {
		name, err := r.resolve()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}
