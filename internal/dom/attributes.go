package dom

// Attributes 有序属性表，键唯一，重复键以后出现的值为准
type Attributes struct {
	keys   []string
	values map[string]string
}

func newAttributes(flat []string) (Attributes, error) {
	if len(flat)%2 != 0 {
		return Attributes{}, ErrOddAttributes
	}
	a := Attributes{}
	if len(flat) == 0 {
		return a, nil
	}
	a.keys = make([]string, 0, len(flat)/2)
	a.values = make(map[string]string, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		k, v := flat[i], flat[i+1]
		if _, ok := a.values[k]; !ok {
			a.keys = append(a.keys, k)
		}
		a.values[k] = v
	}
	return a, nil
}

// Get 读取属性值
func (a Attributes) Get(name string) (string, bool) {
	v, ok := a.values[name]
	return v, ok
}

// Keys 按出现顺序返回属性名
func (a Attributes) Keys() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

func (a Attributes) Len() int { return len(a.keys) }
