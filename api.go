package mtcore

import "time"

// The functions below mirror Node's methods at package scope, each
// resolving the active singleton via GetInstance before delegating.
// They exist for the common case of one node per process (spec.md §6);
// a program that needs more than one node uses the Node methods
// directly instead.

func GetJob(jobID, domainID uint32) (JobHandle, error) {
	n, err := GetInstance()
	if err != nil {
		return JobHandle{}, err
	}
	return n.GetJob(jobID, domainID)
}

func CreateAction(job JobHandle, fn ActionFunc, localData any, attrs ActionAttributes) (ActionHandle, error) {
	n, err := GetInstance()
	if err != nil {
		return ActionHandle{}, err
	}
	return n.CreateAction(job, fn, localData, attrs)
}

func RegisterPluginAction(job JobHandle, start PluginStartFunc, cancel PluginCancelFunc, finalize PluginFinalizeFunc, pluginData any, attrs ActionAttributes) (ActionHandle, error) {
	n, err := GetInstance()
	if err != nil {
		return ActionHandle{}, err
	}
	return n.RegisterPluginAction(job, start, cancel, finalize, pluginData, attrs)
}

func DeleteAction(h ActionHandle, timeout time.Duration) error {
	n, err := GetInstance()
	if err != nil {
		return err
	}
	return n.DeleteAction(h, timeout)
}

func StartTask(job JobHandle, args, result []byte, attrs TaskAttributes, group GroupHandle) (TaskHandle, error) {
	n, err := GetInstance()
	if err != nil {
		return TaskHandle{}, err
	}
	return n.StartTask(job, args, result, attrs, group)
}

func WaitTask(h TaskHandle, timeout time.Duration) error {
	n, err := GetInstance()
	if err != nil {
		return err
	}
	return n.WaitTask(h, timeout)
}

func CancelTask(h TaskHandle) error {
	n, err := GetInstance()
	if err != nil {
		return err
	}
	return n.CancelTask(h)
}

func DeleteTask(h TaskHandle) error {
	n, err := GetInstance()
	if err != nil {
		return err
	}
	return n.DeleteTask(h)
}

func CreateGroup() (GroupHandle, error) {
	n, err := GetInstance()
	if err != nil {
		return GroupHandle{}, err
	}
	return n.CreateGroup()
}

func WaitAny(h GroupHandle, timeout time.Duration) (any, error) {
	n, err := GetInstance()
	if err != nil {
		return nil, err
	}
	return n.WaitAny(h, timeout)
}

func WaitAll(h GroupHandle, timeout time.Duration) error {
	n, err := GetInstance()
	if err != nil {
		return err
	}
	return n.WaitAll(h, timeout)
}

func DeleteGroup(h GroupHandle) error {
	n, err := GetInstance()
	if err != nil {
		return err
	}
	return n.DeleteGroup(h)
}

func CreateQueue(job JobHandle, attrs QueueAttributes) (QueueHandle, error) {
	n, err := GetInstance()
	if err != nil {
		return QueueHandle{}, err
	}
	return n.CreateQueue(job, attrs)
}

func Spawn(q QueueHandle, args, result []byte, attrs TaskAttributes, group GroupHandle) (TaskHandle, error) {
	n, err := GetInstance()
	if err != nil {
		return TaskHandle{}, err
	}
	return n.Spawn(q, args, result, attrs, group)
}

func EnableQueue(h QueueHandle) error {
	n, err := GetInstance()
	if err != nil {
		return err
	}
	return n.EnableQueue(h)
}

func DisableQueue(h QueueHandle, timeout time.Duration) error {
	n, err := GetInstance()
	if err != nil {
		return err
	}
	return n.DisableQueue(h, timeout)
}

func DeleteQueue(h QueueHandle, timeout time.Duration) error {
	n, err := GetInstance()
	if err != nil {
		return err
	}
	return n.DeleteQueue(h, timeout)
}
